package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
)

func TestIndexTablesTrimsAndSkipsBlank(t *testing.T) {
	tables, err := indexTables([]Table{{Name: " order_events "}, {Name: ""}})
	if err != nil {
		t.Fatalf("index tables: %v", err)
	}
	if _, ok := tables["order_events"]; !ok || len(tables) != 1 {
		t.Fatalf("unexpected tables %v", tables)
	}
}

func TestIndexTablesRejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := indexTables([]Table{{Name: "a"}, {Name: " a"}}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := indexTables(nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table required error, got %v", err)
	}
}

func TestTableMetadataPartitionsByDay(t *testing.T) {
	md := tableMetadata(Table{
		Name:           "order_events",
		Schema:         bigquery.Schema{{Name: "occurred_at", Type: bigquery.TimestampFieldType}},
		PartitionField: "occurred_at",
	})
	if md.TimePartitioning == nil || md.TimePartitioning.Field != "occurred_at" || md.TimePartitioning.Type != bigquery.DayPartitioningType {
		t.Fatalf("unexpected partitioning %+v", md.TimePartitioning)
	}
	if unpartitioned := tableMetadata(Table{Name: "x"}); unpartitioned.TimePartitioning != nil {
		t.Fatalf("expected no partitioning")
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d"}, nil, Table{Name: "t"}); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil, Table{Name: "t"}); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := fmt.Errorf("lookup: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !isNotFound(notFound) {
		t.Fatalf("expected wrapped 404 to be not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) || isNotFound(errors.New("x")) {
		t.Fatalf("only 404s count as not found")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "t", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
