package database

// SQL schemas for all ClickHouse tables

const (
	// HistoryMessagesTableSQL creates the history_messages table holding
	// recorded frames, one row per frame with the flattened sample array.
	HistoryMessagesTableSQL = `
		CREATE TABLE IF NOT EXISTS history_messages (
			project String,
			model String,
			topic String,
			filename String,
			frame_index UInt32,
			message Array(Float64),
			number_of_channels UInt16,
			sampling_rate UInt32,
			sampling_size UInt32,
			taco_channel_count UInt8,
			created_at DateTime64(3),
			updated_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (project, model, filename, frame_index)
		PARTITION BY toYYYYMM(created_at)
	`
)

// AllTables returns every table creation statement
func AllTables() []string {
	return []string{
		HistoryMessagesTableSQL,
	}
}
