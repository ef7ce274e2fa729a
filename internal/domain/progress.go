package domain

// ProgressEntry описывает состояние одного вида экспорта внутри сессии.
// Инварианты: Completed <= Total; Finished влечет Completed == Total;
// для chat_members длина ProcessedItems равна Completed.
type ProgressEntry struct {
	Timestamp      string  `json:"timestamp"`
	Completed      int     `json:"completed"`
	Total          int     `json:"total"`
	Finished       bool    `json:"finished"`
	ProcessedItems []int64 `json:"processed_items"`
}

// ProgressMap — полное состояние прогресса сессии, один ключ на вид экспорта.
type ProgressMap map[ExportKind]ProgressEntry

// Percent возвращает процент выполнения, 0 при неизвестном объеме работ.
func (e ProgressEntry) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	return e.Completed * 100 / e.Total
}
