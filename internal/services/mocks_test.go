package services

import (
	"context"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"tradepulse/internal/sources"
)

// MockSheetSource is a testify mock of SheetSource
type MockSheetSource struct {
	mock.Mock
}

func (m *MockSheetSource) Fetch(ctx context.Context, ref sources.SheetRef) ([]byte, error) {
	args := m.Called(ctx, ref)
	buf, _ := args.Get(0).([]byte)
	return buf, args.Error(1)
}

func (m *MockSheetSource) Method() string {
	return m.Called().String(0)
}

const (
	slogInfo = slog.LevelInfo
	slogWarn = slog.LevelWarn
)
