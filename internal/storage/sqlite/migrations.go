package sqlite

// schema contains the database schema DDL.
// Timestamps are unix milliseconds; a NULL event timestamp marks an unreadable source value.
const schema = `
-- Glucose readings
CREATE TABLE IF NOT EXISTS glucose_readings (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    value REAL NOT NULL CHECK (value > 0),
    ts INTEGER,
    note TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_glucose_subject_ts ON glucose_readings(subject_id, ts);

-- Meals
CREATE TABLE IF NOT EXISTS meals (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    ts INTEGER,
    name TEXT NOT NULL DEFAULT '',
    carbs_g REAL NOT NULL DEFAULT 0 CHECK (carbs_g >= 0),
    protein_g REAL,
    fat_g REAL,
    calories_kcal REAL,
    photo_ref TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_meals_subject_ts ON meals(subject_id, ts);

-- Treatments
CREATE TABLE IF NOT EXISTS treatments (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    ts INTEGER,
    kind TEXT NOT NULL,
    insulin_class TEXT NOT NULL DEFAULT '',
    medication_name TEXT NOT NULL DEFAULT '',
    dose_amount REAL NOT NULL DEFAULT 0 CHECK (dose_amount >= 0),
    dose_unit TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_treatments_subject_ts ON treatments(subject_id, ts);

-- Direct messages
CREATE TABLE IF NOT EXISTS direct_messages (
    id TEXT PRIMARY KEY,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    body TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON direct_messages(sender_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON direct_messages(receiver_id, created_at);
`
