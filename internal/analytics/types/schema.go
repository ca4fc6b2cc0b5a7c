package types

import (
	cbigquery "cloud.google.com/go/bigquery"
)

// PartitionField is the column both fact tables are day-partitioned on.
const PartitionField = "occurred_at"

// OrderEventSchema is the order_events table layout. It must stay in step
// with OrderEventRow's bigquery tags.
func OrderEventSchema() cbigquery.Schema {
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("order_id", cbigquery.StringFieldType),
		nullable("user_id", cbigquery.StringFieldType),
		nullable("source", cbigquery.StringFieldType),
		nullable("status", cbigquery.StringFieldType),
		nullable("provider", cbigquery.StringFieldType),
		nullable("payment_id", cbigquery.StringFieldType),
		nullable("item_count", cbigquery.IntegerFieldType),
		nullable("subtotal_cents", cbigquery.IntegerFieldType),
		nullable("shipping_fee_cents", cbigquery.IntegerFieldType),
		nullable("total_cents", cbigquery.IntegerFieldType),
		nullable("paid_cents", cbigquery.IntegerFieldType),
		nullable("items", cbigquery.JSONFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

// RefundEventSchema is the refund_events table layout.
func RefundEventSchema() cbigquery.Schema {
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("refund_id", cbigquery.StringFieldType),
		required("order_id", cbigquery.StringFieldType),
		nullable("user_id", cbigquery.StringFieldType),
		nullable("admin_id", cbigquery.StringFieldType),
		required("status", cbigquery.StringFieldType),
		required("amount_cents", cbigquery.IntegerFieldType),
		nullable("order_refund_status", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

func required(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
	return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
}

func nullable(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
	return &cbigquery.FieldSchema{Name: name, Type: t}
}
