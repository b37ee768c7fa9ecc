package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrUnavailable - сервис эмбеддингов не запущен (соединение отклонено).
	ErrUnavailable = errors.New("сервис эмбеддингов недоступен")

	// ErrTimeout - сервис не ответил за отведённое время.
	ErrTimeout = errors.New("таймаут запроса к сервису эмбеддингов")
)

// RejectedError - сервис ответил статусом, отличным от 2xx.
type RejectedError struct {
	// Endpoint - путь запроса (/embed-image, /search, /health).
	Endpoint string

	// Status - HTTP статус ответа.
	Status int

	// Reason - сообщение из тела ответа.
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("сервис эмбеддингов отклонил запрос %s: статус %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("сервис эмбеддингов отклонил запрос %s: статус %d: %s", e.Endpoint, e.Status, e.Reason)
}

// classifyTransport превращает ошибку транспорта в ErrUnavailable или ErrTimeout.
// Отмена родительского контекста возвращается как есть.
func classifyTransport(endpoint string, err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, endpoint, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, endpoint, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, endpoint, err)
	}

	return fmt.Errorf("ошибка запроса %s: %w", endpoint, err)
}

// Outcome возвращает короткую метку результата запроса для метрик.
func Outcome(err error) string {
	var rejected *RejectedError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &rejected):
		return "rejected"
	default:
		return "error"
	}
}
