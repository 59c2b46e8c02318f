package reasoning

// ReceiptSchema describes the tables the model may query. Monetary columns
// are integer cents.
const ReceiptSchema = `Available tables (PostgreSQL, read-only):

1. receipt_lookup
   - transaction_id TEXT (PK)
   - customer_id TEXT
   - customer_name TEXT
   - store_id TEXT
   - store_name TEXT
   - transaction_ts TIMESTAMPTZ
   - transaction_date DATE
   - subtotal_cents BIGINT  (4800 = $48.00)
   - tax_cents BIGINT
   - total_cents BIGINT
   - tender_type TEXT       (CREDIT, DEBIT, CASH, EBT)
   - card_last4 TEXT
   - item_count INTEGER
   - item_summary TEXT      ("Oat Milk 32oz, Roquefort Wedge 8oz + 1 more")
   - category_tags JSONB    (["DAIRY","BAKERY"])

2. spending_summary
   - customer_id TEXT
   - category_l1 TEXT       (DAIRY, DELI, PRODUCE, MEAT)
   - summary_month DATE     ('2026-02-01')
   - total_cents BIGINT
   - visit_count INTEGER

3. receipt_line_items
   - transaction_id TEXT
   - line_number INTEGER
   - sku TEXT
   - product_name TEXT
   - brand TEXT
   - category_l1 TEXT
   - quantity NUMERIC
   - unit_price_cents BIGINT
   - line_total_cents BIGINT
   - discount_cents BIGINT
`
