package port

import "coinbook/internal/domain/model"

type Sink interface {
	// Balance sheet of one namespace
	WriteBalance(sheet *model.BalanceSheet) error
	// Open positions of one namespace
	WritePositions(namespace string, positions []model.Position) error
	// Outcome of a crawl or review cycle
	WriteCycle(report *model.CycleReport) error
}
