package worker

// Stats содержит статистику очереди эмбеддингов.
type Stats struct {
	// QueueLength - количество задач в очереди.
	QueueLength int `json:"queue_length"`

	// Pending - задачи, ожидающие обработки. Всегда равно QueueLength.
	Pending int `json:"pending"`

	// Processing - активен ли цикл обработки.
	Processing bool `json:"processing"`

	// Processed - успешно сохранённые эмбеддинги с момента старта процесса.
	Processed int64 `json:"processed"`

	// Failed - задачи с ошибкой с момента старта процесса.
	Failed int64 `json:"failed"`

	// CurrentBatch - ID изображений текущего батча.
	CurrentBatch []int64 `json:"current_batch"`
}

// InFlight возвращает количество задач в очереди и в текущем батче.
func (s Stats) InFlight() int {
	return s.QueueLength + len(s.CurrentBatch)
}
