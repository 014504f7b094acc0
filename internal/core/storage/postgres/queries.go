package postgres

// SQL queries for the bucket record log

const (
	// queryInsertRecord appends one flushed bucket.
	// (session_id, bucket_key) is the primary key, so a retried append of an
	// already stored bucket inserts nothing and reports zero affected rows.
	queryInsertRecord = `
		INSERT INTO bucket_records (
			session_id, bucket_key, distance, total, flushed_at
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, bucket_key) DO NOTHING
	`

	// queryReadRecords returns one session's records in key order.
	queryReadRecords = `
		SELECT bucket_key, distance, total
		FROM bucket_records
		WHERE session_id = $1
		ORDER BY bucket_key ASC
	`

	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'bucket_records'
		)
	`
)
