package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"inverapp/internal/models"
)

var (
	ErrUnknownFlowKind = errors.New("unknown flow kind")
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate")
)

// queryRower: *sql.DB или *sql.Tx
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// flowTables: имена таблиц и колонок для sale/payment процессов.
// Структура таблиц одинаковая, отличаются только имена.
type flowTables struct {
	flows          string // экземпляры процессов
	ownerColumn    string // ссылка на бизнес-объект
	secondPayment  string // выражение для is_second_payment
	stages         string // этапы шаблона
	tasks          string // задачи шаблона
	instances      string // экземпляры задач
	instanceFlowFK string // ссылка экземпляра задачи на flow
}

var (
	saleTables = flowTables{
		flows:          "reservation_flows",
		ownerColumn:    "reservation_id",
		secondPayment:  "FALSE",
		stages:         "sale_flow_stages",
		tasks:          "sale_flow_tasks",
		instances:      "reservation_flow_tasks",
		instanceFlowFK: "reservation_flow_id",
	}
	paymentTables = flowTables{
		flows:          "commission_flows",
		ownerColumn:    "broker_commission_id",
		secondPayment:  "is_second_payment",
		stages:         "payment_flow_stages",
		tasks:          "payment_flow_tasks",
		instances:      "commission_flow_tasks",
		instanceFlowFK: "commission_flow_id",
	}
)

func tablesFor(kind models.FlowKind) (flowTables, error) {
	switch kind {
	case models.FlowKindSale:
		return saleTables, nil
	case models.FlowKindPayment:
		return paymentTables, nil
	}
	return flowTables{}, fmt.Errorf("%w: %q", ErrUnknownFlowKind, kind)
}

// KindForTable maps a changed table name back to its flow kind.
func KindForTable(table string) (models.FlowKind, bool) {
	switch table {
	case saleTables.flows, saleTables.instances:
		return models.FlowKindSale, true
	case paymentTables.flows, paymentTables.instances:
		return models.FlowKindPayment, true
	}
	return "", false
}

// IsFlowTable / IsInstanceTable помогают обработчикам change feed.
func IsFlowTable(table string) bool {
	return table == saleTables.flows || table == paymentTables.flows
}

func IsInstanceTable(table string) bool {
	return table == saleTables.instances || table == paymentTables.instances
}
