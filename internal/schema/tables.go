package schema

import (
	"fmt"
	"strings"
)

// Column describes one column of a target table.
type Column struct {
	Name       string
	Type       string
	Default    string // SQL expression, empty for none
	NotNull    bool
	PrimaryKey bool
	References string // e.g. "users(id) ON DELETE CASCADE"
}

// definition renders the column for CREATE TABLE or ADD COLUMN. When adding
// to an existing table, NOT NULL is only emitted together with a default so
// existing rows stay valid.
func (c Column) definition(creating bool) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	b.WriteString(c.Type)
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.NotNull && (creating || c.Default != "") {
		b.WriteString(" NOT NULL")
	}
	if c.References != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(c.References)
	}
	return b.String()
}

// AddStatement renders ALTER TABLE ... ADD COLUMN for this column.
func (c Column) AddStatement(table string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, c.definition(false))
}

// Table is a target table. Fallback is hand-written DDL used when creating
// the table from its column definitions fails.
type Table struct {
	Name        string
	Columns     []Column
	Constraints []string
	Fallback    string
}

// CreateStatement renders CREATE TABLE from the column definitions.
func (t Table) CreateStatement() string {
	parts := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		parts = append(parts, c.definition(true))
	}
	parts = append(parts, t.Constraints...)
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", t.Name, strings.Join(parts, ",\n\t"))
}

// Index is a target index, created with IF NOT EXISTS.
type Index struct {
	Name       string
	Table      string
	Definition string // column list or expression, with optional WHERE clause
	Unique     bool
}

// Statement renders CREATE INDEX IF NOT EXISTS.
func (i Index) Statement() string {
	unique := ""
	if i.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s %s", unique, i.Name, i.Table, i.Definition)
}

// Index names referenced by the repositories when mapping unique violations.
const (
	IndexUsersEmail       = "users_email_lower_key"
	IndexActiveUserTask   = "user_tasks_active_key"
	IndexChatReadStateKey = "chat_read_state_key"
	IndexSettingsKey      = "settings_key_key"
)

func idColumn() Column {
	return Column{Name: "id", Type: "BIGSERIAL", PrimaryKey: true}
}

func createdAt() Column {
	return Column{Name: "created_at", Type: "TIMESTAMPTZ", Default: "NOW()", NotNull: true}
}

// Tables returns the portal schema in dependency order.
func Tables() []Table {
	return []Table{
		{
			Name: "users",
			Columns: []Column{
				idColumn(),
				{Name: "first_name", Type: "VARCHAR(255)", Default: "''", NotNull: true},
				{Name: "last_name", Type: "VARCHAR(255)", Default: "''", NotNull: true},
				{Name: "email", Type: "VARCHAR(255)", NotNull: true},
				{Name: "telegram_username", Type: "VARCHAR(255)"},
				{Name: "hashed_password", Type: "VARCHAR(255)", Default: "''", NotNull: true},
				{Name: "balance", Type: "NUMERIC(14,2)", Default: "100.00", NotNull: true},
				{Name: "level", Type: "VARCHAR(20)", Default: "'basic'", NotNull: true},
				{Name: "is_admin", Type: "BOOLEAN", Default: "FALSE", NotNull: true},
				{Name: "is_verified", Type: "BOOLEAN", Default: "FALSE", NotNull: true},
				{Name: "documents_accepted", Type: "BOOLEAN", Default: "FALSE", NotNull: true},
				{Name: "tour_completed", Type: "BOOLEAN", Default: "FALSE", NotNull: true},
				{Name: "withdrawal_enabled", Type: "BOOLEAN", Default: "TRUE", NotNull: true},
				{Name: "min_withdrawal_amount", Type: "NUMERIC(14,2)", Default: "50.00", NotNull: true},
				createdAt(),
				{Name: "updated_at", Type: "TIMESTAMPTZ", Default: "NOW()", NotNull: true},
			},
		},
		{
			Name: "tasks",
			Columns: []Column{
				idColumn(),
				{Name: "title", Type: "VARCHAR(255)", NotNull: true},
				{Name: "description", Type: "TEXT", Default: "''", NotNull: true},
				{Name: "required_proof", Type: "TEXT", Default: "''", NotNull: true},
				{Name: "reward", Type: "NUMERIC(14,2)", Default: "0", NotNull: true},
				{Name: "level_required", Type: "VARCHAR(20)", Default: "'basic'", NotNull: true},
				{Name: "created_by", Type: "BIGINT", Default: "0", NotNull: true},
				createdAt(),
				{Name: "expires_at", Type: "TIMESTAMPTZ"},
				{Name: "time_limit_hours", Type: "INTEGER"},
				{Name: "is_active", Type: "BOOLEAN", Default: "TRUE", NotNull: true},
			},
		},
		{
			Name: "user_tasks",
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: "BIGINT", NotNull: true, References: "users(id) ON DELETE CASCADE"},
				{Name: "task_id", Type: "BIGINT", NotNull: true, References: "tasks(id) ON DELETE CASCADE"},
				{Name: "status", Type: "VARCHAR(20)", Default: "'taken'", NotNull: true},
				// Nullable so the column can be added to legacy tables and backfilled.
				{Name: "taken_at", Type: "TIMESTAMPTZ"},
				{Name: "expires_at", Type: "TIMESTAMPTZ"},
				{Name: "submitted_at", Type: "TIMESTAMPTZ"},
				{Name: "approved_at", Type: "TIMESTAMPTZ"},
				{Name: "proof", Type: "TEXT"},
				{Name: "proof_files", Type: "TEXT[]", Default: "'{}'", NotNull: true},
				{Name: "proof_links", Type: "TEXT[]", Default: "'{}'", NotNull: true},
				{Name: "admin_comment", Type: "TEXT"},
				{Name: "reviewed_by", Type: "BIGINT"},
			},
		},
		{
			Name: "news",
			Columns: []Column{
				idColumn(),
				{Name: "title", Type: "VARCHAR(255)", NotNull: true},
				{Name: "content", Type: "TEXT", NotNull: true},
				{Name: "created_by", Type: "BIGINT", Default: "0", NotNull: true},
				createdAt(),
				{Name: "is_active", Type: "BOOLEAN", Default: "TRUE", NotNull: true},
			},
		},
		{
			Name: "chat_messages",
			Columns: []Column{
				idColumn(),
				{Name: "sender_id", Type: "BIGINT", NotNull: true},
				{Name: "sender_name", Type: "VARCHAR(255)", Default: "''", NotNull: true},
				{Name: "recipient_id", Type: "BIGINT"},
				{Name: "chat_type", Type: "VARCHAR(20)", Default: "'general'", NotNull: true},
				{Name: "message", Type: "TEXT", NotNull: true},
				{Name: "is_admin", Type: "BOOLEAN", Default: "FALSE", NotNull: true},
				{Name: "sent_at", Type: "TIMESTAMPTZ", Default: "NOW()", NotNull: true},
				{Name: "is_read", Type: "BOOLEAN", Default: "FALSE", NotNull: true},
			},
		},
		{
			Name: "chat_read_state",
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: "BIGINT", NotNull: true, References: "users(id) ON DELETE CASCADE"},
				{Name: "chat_type", Type: "VARCHAR(20)", NotNull: true},
				{Name: "counterpart_id", Type: "BIGINT", Default: "0", NotNull: true},
				{Name: "last_read_at", Type: "TIMESTAMPTZ", NotNull: true},
			},
			Fallback: `CREATE TABLE IF NOT EXISTS chat_read_state (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL,
				chat_type VARCHAR(20) NOT NULL,
				counterpart_id BIGINT NOT NULL DEFAULT 0,
				last_read_at TIMESTAMPTZ NOT NULL
			)`,
		},
		{
			Name: "settings",
			Columns: []Column{
				idColumn(),
				{Name: "key", Type: "VARCHAR(100)", NotNull: true},
				{Name: "value", Type: "TEXT", Default: "''", NotNull: true},
				{Name: "description", Type: "TEXT"},
				createdAt(),
				{Name: "updated_at", Type: "TIMESTAMPTZ", Default: "NOW()", NotNull: true},
			},
		},
		{
			Name: "withdrawal_requests",
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: "BIGINT", NotNull: true, References: "users(id) ON DELETE CASCADE"},
				{Name: "network_coin", Type: "VARCHAR(50)", NotNull: true},
				{Name: "amount", Type: "NUMERIC(14,2)", NotNull: true},
				{Name: "wallet_address", Type: "VARCHAR(255)", NotNull: true},
				{Name: "status", Type: "VARCHAR(20)", Default: "'pending'", NotNull: true},
				createdAt(),
				{Name: "completed_at", Type: "TIMESTAMPTZ"},
			},
		},
		{
			Name: "verification_requests",
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: "BIGINT", NotNull: true, References: "users(id) ON DELETE CASCADE"},
				{Name: "full_name", Type: "VARCHAR(255)", NotNull: true},
				{Name: "date_of_birth", Type: "VARCHAR(20)", Default: "''", NotNull: true},
				{Name: "passport_number", Type: "VARCHAR(50)", Default: "''", NotNull: true},
				{Name: "passport_issue_date", Type: "VARCHAR(20)", Default: "''", NotNull: true},
				{Name: "passport_issuer", Type: "VARCHAR(255)", Default: "''", NotNull: true},
				{Name: "address", Type: "TEXT", Default: "''", NotNull: true},
				{Name: "phone_number", Type: "VARCHAR(50)", Default: "''", NotNull: true},
				{Name: "document_front", Type: "VARCHAR(500)"},
				{Name: "document_back", Type: "VARCHAR(500)"},
				{Name: "selfie_with_document", Type: "VARCHAR(500)"},
				{Name: "status", Type: "VARCHAR(20)", Default: "'pending'", NotNull: true},
				{Name: "admin_comment", Type: "TEXT"},
				{Name: "submitted_at", Type: "TIMESTAMPTZ", Default: "NOW()", NotNull: true},
				{Name: "reviewed_at", Type: "TIMESTAMPTZ"},
				{Name: "reviewed_by", Type: "BIGINT"},
			},
			Fallback: `CREATE TABLE IF NOT EXISTS verification_requests (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				full_name VARCHAR(255) NOT NULL,
				date_of_birth VARCHAR(20) NOT NULL DEFAULT '',
				passport_number VARCHAR(50) NOT NULL DEFAULT '',
				passport_issue_date VARCHAR(20) NOT NULL DEFAULT '',
				passport_issuer VARCHAR(255) NOT NULL DEFAULT '',
				address TEXT NOT NULL DEFAULT '',
				phone_number VARCHAR(50) NOT NULL DEFAULT '',
				document_front VARCHAR(500),
				document_back VARCHAR(500),
				selfie_with_document VARCHAR(500),
				status VARCHAR(20) NOT NULL DEFAULT 'pending',
				admin_comment TEXT,
				submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				reviewed_at TIMESTAMPTZ,
				reviewed_by BIGINT
			)`,
		},
		{
			Name: "user_events",
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: "BIGINT", NotNull: true, References: "users(id) ON DELETE CASCADE"},
				{Name: "event_type", Type: "VARCHAR(50)", NotNull: true},
				{Name: "event_description", Type: "TEXT", Default: "''", NotNull: true},
				{Name: "event_data", Type: "JSONB"},
				createdAt(),
			},
			Fallback: `CREATE TABLE IF NOT EXISTS user_events (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				event_type VARCHAR(50) NOT NULL,
				event_description TEXT NOT NULL DEFAULT '',
				event_data JSONB,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	}
}

// Indexes returns the portal indexes.
func Indexes() []Index {
	return []Index{
		{Name: IndexUsersEmail, Table: "users", Definition: "(LOWER(email))", Unique: true},
		{
			Name:       IndexActiveUserTask,
			Table:      "user_tasks",
			Definition: "(user_id, task_id) WHERE status IN ('taken', 'submitted', 'revision')",
			Unique:     true,
		},
		{Name: IndexChatReadStateKey, Table: "chat_read_state", Definition: "(user_id, chat_type, counterpart_id)", Unique: true},
		{Name: IndexSettingsKey, Table: "settings", Definition: "(key)", Unique: true},
		{Name: "user_tasks_status_idx", Table: "user_tasks", Definition: "(status)"},
		{Name: "user_tasks_user_idx", Table: "user_tasks", Definition: "(user_id)"},
		{Name: "chat_messages_type_sent_idx", Table: "chat_messages", Definition: "(chat_type, sent_at)"},
		{Name: "chat_messages_recipient_idx", Table: "chat_messages", Definition: "(recipient_id, sent_at)"},
		{Name: "withdrawal_requests_user_idx", Table: "withdrawal_requests", Definition: "(user_id, created_at DESC)"},
		{Name: "verification_requests_user_idx", Table: "verification_requests", Definition: "(user_id, submitted_at DESC)"},
		{Name: "user_events_user_idx", Table: "user_events", Definition: "(user_id, created_at DESC)"},
	}
}
