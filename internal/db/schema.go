package db

import "strings"

// schema uses portable SQL; {{TS}} becomes the driver's timestamp type
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	full_name TEXT NOT NULL DEFAULT '',
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS two_factor (
	user_id TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
	secret TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT FALSE,
	recovery_codes TEXT NOT NULL DEFAULT '[]',
	enabled_at {{TS}},
	last_used_step BIGINT NOT NULL DEFAULT 0,
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS whatsapp_connections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	instance_name TEXT NOT NULL UNIQUE,
	phone_number TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'disconnected',
	qr_code TEXT NOT NULL DEFAULT '',
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	connection_id TEXT NOT NULL REFERENCES whatsapp_connections(id) ON DELETE CASCADE,
	remote_jid TEXT NOT NULL,
	contact_name TEXT NOT NULL DEFAULT '',
	phone_number TEXT NOT NULL DEFAULT '',
	last_message_preview TEXT NOT NULL DEFAULT '',
	last_message_at {{TS}},
	unread_count INTEGER NOT NULL DEFAULT 0,
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL,
	UNIQUE (connection_id, remote_jid)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	external_id TEXT,
	direction TEXT NOT NULL,
	source TEXT NOT NULL,
	body TEXT NOT NULL,
	sent_at {{TS}} NOT NULL,
	created_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS automations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	connection_id TEXT REFERENCES whatsapp_connections(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]',
	match_type TEXT NOT NULL,
	response_type TEXT NOT NULL,
	response_text TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	trigger_count INTEGER NOT NULL DEFAULT 0,
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	connection_id TEXT NOT NULL REFERENCES whatsapp_connections(id) ON DELETE CASCADE,
	phone_number TEXT NOT NULL,
	message TEXT NOT NULL,
	scheduled_for {{TS}} NOT NULL,
	recurrence TEXT NOT NULL DEFAULT 'none',
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	next_attempt_at {{TS}},
	sent_at {{TS}},
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_chats (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL REFERENCES ai_chats(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS system_logs (
	id TEXT PRIMARY KEY,
	level TEXT NOT NULL,
	source TEXT NOT NULL,
	message TEXT NOT NULL,
	user_id TEXT,
	details TEXT NOT NULL DEFAULT '{}',
	created_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '{}',
	created_at {{TS}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_connections_user_id ON whatsapp_connections(user_id);
CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id, last_message_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id, sent_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external_id ON messages(conversation_id, external_id);
CREATE INDEX IF NOT EXISTS idx_automations_user_id ON automations(user_id);
CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_messages(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_scheduled_user_id ON scheduled_messages(user_id);
CREATE INDEX IF NOT EXISTS idx_ai_chats_user_id ON ai_chats(user_id);
CREATE INDEX IF NOT EXISTS idx_ai_messages_chat_id ON ai_messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_system_logs_created_at ON system_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id, created_at);
`

func (d *Database) createTables() error {
	tsType := "TIMESTAMP"
	if d.driver == DriverPostgres {
		tsType = "TIMESTAMPTZ"
	} else {
		if _, err := d.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return err
		}
	}

	ddl := strings.ReplaceAll(schema, "{{TS}}", tsType)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
