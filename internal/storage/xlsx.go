package storage

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"telegram-exporter/internal/domain"
)

// SaveMatchesWorkbook дополнительно отдает отчет о совпадениях в виде
// XLSX-книги рядом с CSV/JSON. Возвращает путь к созданному файлу.
func (s *FileStore) SaveMatchesWorkbook(session string, matches []domain.MatchRecord) (string, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn("Не удалось закрыть XLSX-файл", "error", err)
		}
	}()

	const sheetName = "Совпадения"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("не удалось создать лист: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		s.log.Warn("Не удалось удалить лист по умолчанию", "error", err)
	}

	for i, column := range domain.MatchColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, column); err != nil {
			return "", fmt.Errorf("не удалось записать заголовок: %w", err)
		}
	}

	for rowIdx, match := range matches {
		for colIdx, value := range match.CSVRow() {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return "", fmt.Errorf("не удалось записать строку %d: %w", rowIdx+1, err)
			}
		}
	}

	if err := os.MkdirAll(s.sessionDir(session), 0o755); err != nil {
		return "", fmt.Errorf("не удалось создать каталог сессии: %w", err)
	}
	path := s.sessionFile(session, matchesXLSXTmpl)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("не удалось сохранить XLSX %s: %w", path, err)
	}
	return path, nil
}
