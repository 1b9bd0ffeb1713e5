package postgres

// NotifyChannel is the LISTEN/NOTIFY channel carrying direct_messages row changes.
const NotifyChannel = "direct_messages"

// schema contains the database schema DDL. Inserts and read-flag updates on
// direct_messages raise a notification with the row id; listeners load the row.
const schema = `
CREATE TABLE IF NOT EXISTS glucose_readings (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    value DOUBLE PRECISION NOT NULL CHECK (value > 0),
    ts TIMESTAMPTZ,
    note TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_glucose_subject_ts ON glucose_readings(subject_id, ts);

CREATE TABLE IF NOT EXISTS meals (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    ts TIMESTAMPTZ,
    name TEXT NOT NULL DEFAULT '',
    carbs_g DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (carbs_g >= 0),
    protein_g DOUBLE PRECISION,
    fat_g DOUBLE PRECISION,
    calories_kcal DOUBLE PRECISION,
    photo_ref TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_meals_subject_ts ON meals(subject_id, ts);

CREATE TABLE IF NOT EXISTS treatments (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    ts TIMESTAMPTZ,
    kind TEXT NOT NULL CHECK (kind IN ('insulin', 'pill')),
    insulin_class TEXT NOT NULL DEFAULT '',
    medication_name TEXT NOT NULL DEFAULT '',
    dose_amount DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (dose_amount >= 0),
    dose_unit TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_treatments_subject_ts ON treatments(subject_id, ts);

CREATE TABLE IF NOT EXISTS direct_messages (
    id TEXT PRIMARY KEY,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    body TEXT NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON direct_messages(sender_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON direct_messages(receiver_id, created_at);

CREATE OR REPLACE FUNCTION notify_direct_message() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('` + NotifyChannel + `', json_build_object('type', TG_OP, 'id', NEW.id)::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS direct_messages_insert_notify ON direct_messages;
CREATE TRIGGER direct_messages_insert_notify
    AFTER INSERT ON direct_messages
    FOR EACH ROW EXECUTE FUNCTION notify_direct_message();

DROP TRIGGER IF EXISTS direct_messages_read_notify ON direct_messages;
CREATE TRIGGER direct_messages_read_notify
    AFTER UPDATE OF is_read ON direct_messages
    FOR EACH ROW WHEN (OLD.is_read IS DISTINCT FROM NEW.is_read)
    EXECUTE FUNCTION notify_direct_message();
`
