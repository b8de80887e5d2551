package datasource

// 时间字段统一存 unix 秒，两种方言共用同一套查询。

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS action_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL DEFAULT '',
	ud TEXT NOT NULL DEFAULT '',
	item_id TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	action INTEGER NOT NULL,
	type INTEGER NOT NULL DEFAULT 0,
	ab_flag TEXT NOT NULL DEFAULT '',
	device TEXT NOT NULL DEFAULT '',
	ip TEXT NOT NULL DEFAULT '',
	recall_type TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL DEFAULT '',
	first_reach INTEGER,
	created_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_action_log_created ON action_log (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_action_log_uid ON action_log (uid)`,
	`CREATE TABLE IF NOT EXISTS search_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL DEFAULT '',
	ud TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS editor_pick (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL DEFAULT 'pub',
	pub_id TEXT NOT NULL DEFAULT '',
	pub_topic_id TEXT NOT NULL DEFAULT '',
	ai2k_id TEXT NOT NULL DEFAULT '',
	ai2k_title TEXT NOT NULL DEFAULT '',
	ai2k_description TEXT NOT NULL DEFAULT '',
	ai2k_authors TEXT NOT NULL DEFAULT '',
	interpret TEXT NOT NULL DEFAULT '',
	interpret_author TEXT NOT NULL DEFAULT '',
	video_url TEXT NOT NULL DEFAULT '',
	report_id TEXT NOT NULL DEFAULT '',
	report_title TEXT NOT NULL DEFAULT '',
	report_from TEXT NOT NULL DEFAULT '',
	report_date INTEGER,
	is_top INTEGER NOT NULL DEFAULT 0,
	top_start_at INTEGER,
	top_end_at INTEGER,
	top_reason_zh TEXT NOT NULL DEFAULT '',
	top_reason_en TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS person_activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id TEXT NOT NULL,
	pub_id TEXT NOT NULL DEFAULT '',
	event_time INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS subject (
	title TEXT PRIMARY KEY,
	keywords TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS newly_paper (
	paper_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL DEFAULT 0,
	ts INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`,
	`CREATE TABLE IF NOT EXISTS user_vector (
	uid TEXT PRIMARY KEY,
	vector TEXT NOT NULL DEFAULT '',
	gender INTEGER NOT NULL DEFAULT -1,
	cluster INTEGER NOT NULL DEFAULT -1,
	updated_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS chinese_english (
	chinese TEXT PRIMARY KEY,
	english TEXT NOT NULL,
	translator TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS action_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	uid VARCHAR(32) NOT NULL DEFAULT '',
	ud VARCHAR(64) NOT NULL DEFAULT '',
	item_id VARCHAR(64) NOT NULL DEFAULT '',
	keywords VARCHAR(255) NOT NULL DEFAULT '',
	action INT NOT NULL,
	type INT NOT NULL DEFAULT 0,
	ab_flag VARCHAR(8) NOT NULL DEFAULT '',
	device VARCHAR(255) NOT NULL DEFAULT '',
	ip VARCHAR(64) NOT NULL DEFAULT '',
	recall_type VARCHAR(64) NOT NULL DEFAULT '',
	query VARCHAR(255) NOT NULL DEFAULT '',
	first_reach BIGINT NULL,
	created_at BIGINT NOT NULL,
	INDEX idx_action_log_created (created_at),
	INDEX idx_action_log_uid (uid)
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS search_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	uid VARCHAR(32) NOT NULL DEFAULT '',
	ud VARCHAR(64) NOT NULL DEFAULT '',
	query VARCHAR(255) NOT NULL,
	created_at BIGINT NOT NULL,
	INDEX idx_search_log_uid (uid)
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS editor_pick (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	category VARCHAR(32) NOT NULL DEFAULT 'pub',
	pub_id VARCHAR(32) NOT NULL DEFAULT '',
	pub_topic_id VARCHAR(32) NOT NULL DEFAULT '',
	ai2k_id VARCHAR(32) NOT NULL DEFAULT '',
	ai2k_title VARCHAR(255) NOT NULL DEFAULT '',
	ai2k_description TEXT,
	ai2k_authors TEXT,
	interpret TEXT,
	interpret_author VARCHAR(128) NOT NULL DEFAULT '',
	video_url TEXT,
	report_id VARCHAR(24) NOT NULL DEFAULT '',
	report_title VARCHAR(255) NOT NULL DEFAULT '',
	report_from VARCHAR(64) NOT NULL DEFAULT '',
	report_date BIGINT NULL,
	is_top TINYINT NOT NULL DEFAULT 0,
	top_start_at BIGINT NULL,
	top_end_at BIGINT NULL,
	top_reason_zh VARCHAR(250) NOT NULL DEFAULT '',
	top_reason_en VARCHAR(250) NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS person_activity (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	person_id VARCHAR(32) NOT NULL,
	pub_id VARCHAR(32) NOT NULL DEFAULT '',
	event_time BIGINT NOT NULL,
	INDEX idx_person_activity_time (event_time)
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS subject (
	title VARCHAR(128) PRIMARY KEY,
	keywords TEXT
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS newly_paper (
	paper_id VARCHAR(32) PRIMARY KEY,
	title VARCHAR(1024) NOT NULL DEFAULT '',
	year INT NOT NULL DEFAULT 0,
	ts BIGINT NOT NULL,
	INDEX idx_newly_paper_ts (ts)
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS documents (
	collection VARCHAR(64) NOT NULL,
	id VARCHAR(32) NOT NULL,
	body LONGTEXT NOT NULL,
	PRIMARY KEY (collection, id)
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_vector (
	uid VARCHAR(32) PRIMARY KEY,
	vector MEDIUMTEXT,
	gender INT NOT NULL DEFAULT -1,
	cluster INT NOT NULL DEFAULT -1,
	updated_at BIGINT NOT NULL
) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS chinese_english (
	chinese VARCHAR(255) PRIMARY KEY,
	english VARCHAR(1024) NOT NULL,
	translator VARCHAR(32) NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
) DEFAULT CHARSET=utf8mb4`,
}
