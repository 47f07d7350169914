package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/delphitvs/trainhub/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'trainee',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS modules (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '{}',
		icon TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL DEFAULT '[]',
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL,
		step_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '{}',
		correct_index INTEGER NOT NULL DEFAULT 0,
		correct_indices TEXT NOT NULL DEFAULT '[]',
		reference_answer TEXT NOT NULL DEFAULT '',
		hint TEXT NOT NULL DEFAULT '{}',
		difficulty TEXT NOT NULL DEFAULT 'simple',
		image_url TEXT NOT NULL DEFAULT '',
		option_images TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL,
		title TEXT NOT NULL,
		question_ids TEXT NOT NULL DEFAULT '[]',
		time_limit_minutes INTEGER NOT NULL,
		pass_score_percent INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		answers TEXT NOT NULL DEFAULT '[]',
		score INTEGER NOT NULL DEFAULT 0,
		passed BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS session_markers (
		test_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		attempt_id TEXT NOT NULL,
		PRIMARY KEY (test_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS user_progress (
		user_id INTEGER NOT NULL,
		module_id TEXT NOT NULL,
		completed_steps TEXT NOT NULL DEFAULT '[]',
		last_accessed_at DATETIME NOT NULL,
		completed_at DATETIME,
		PRIMARY KEY (user_id, module_id)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS content_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// asJSON marshals a value into the TEXT column representation.
func asJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fromJSON unmarshals a TEXT column into v. Empty columns leave v untouched.
func fromJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// UpsertModule stores a module, replacing any existing row with the same ID.
// Position fixes the display order of the module catalog.
func (s *Store) UpsertModule(m model.Module, position int) error {
	title, err := asJSON(m.Title)
	if err != nil {
		return fmt.Errorf("module %s: %w", m.ID, err)
	}
	desc, err := asJSON(m.Description)
	if err != nil {
		return fmt.Errorf("module %s: %w", m.ID, err)
	}
	steps, err := asJSON(m.Steps)
	if err != nil {
		return fmt.Errorf("module %s: %w", m.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO modules (id, title, description, icon, image_url, steps, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, icon = excluded.icon,
		   image_url = excluded.image_url, steps = excluded.steps, position = excluded.position`,
		m.ID, title, desc, m.Icon, m.ImageURL, steps, position,
	)
	return err
}

func scanModule(scan func(...any) error) (model.Module, error) {
	var m model.Module
	var title, desc, steps string
	var position int
	if err := scan(&m.ID, &title, &desc, &m.Icon, &m.ImageURL, &steps, &position); err != nil {
		return m, err
	}
	if err := fromJSON(title, &m.Title); err != nil {
		return m, fmt.Errorf("module %s: title: %w", m.ID, err)
	}
	if err := fromJSON(desc, &m.Description); err != nil {
		return m, fmt.Errorf("module %s: description: %w", m.ID, err)
	}
	if err := fromJSON(steps, &m.Steps); err != nil {
		return m, fmt.Errorf("module %s: steps: %w", m.ID, err)
	}
	return m, nil
}

const moduleColumns = `id, title, description, icon, image_url, steps, position`

// GetModule returns a module by ID, or nil if absent.
func (s *Store) GetModule(id string) (*model.Module, error) {
	row := s.db.QueryRow(`SELECT `+moduleColumns+` FROM modules WHERE id = ?`, id)
	m, err := scanModule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListModules returns all modules in display order.
func (s *Store) ListModules() ([]model.Module, error) {
	rows, err := s.db.Query(`SELECT ` + moduleColumns + ` FROM modules ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var modules []model.Module
	for rows.Next() {
		m, err := scanModule(rows.Scan)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// DeleteModule removes a module by ID.
func (s *Store) DeleteModule(id string) error {
	_, err := s.db.Exec(`DELETE FROM modules WHERE id = ?`, id)
	return err
}

// UpsertQuestion stores a question, replacing any existing row with the same ID.
func (s *Store) UpsertQuestion(q model.Question) error {
	text, err := asJSON(q.Text)
	if err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	options, err := asJSON(q.Options)
	if err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	indices, err := asJSON(q.CorrectIndices)
	if err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	hint, err := asJSON(q.Hint)
	if err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	images, err := asJSON(q.OptionImages)
	if err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, module_id, step_id, kind, text, options, correct_index,
		   correct_indices, reference_answer, hint, difficulty, image_url, option_images)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   module_id = excluded.module_id, step_id = excluded.step_id, kind = excluded.kind,
		   text = excluded.text, options = excluded.options, correct_index = excluded.correct_index,
		   correct_indices = excluded.correct_indices, reference_answer = excluded.reference_answer,
		   hint = excluded.hint, difficulty = excluded.difficulty, image_url = excluded.image_url,
		   option_images = excluded.option_images`,
		q.ID, q.ModuleID, q.StepID, q.Kind, text, options, q.CorrectIndex,
		indices, q.ReferenceAnswer, hint, q.Difficulty, q.ImageURL, images,
	)
	return err
}

func scanQuestion(scan func(...any) error) (model.Question, error) {
	var q model.Question
	var text, options, indices, hint, images string
	if err := scan(&q.ID, &q.ModuleID, &q.StepID, &q.Kind, &text, &options, &q.CorrectIndex,
		&indices, &q.ReferenceAnswer, &hint, &q.Difficulty, &q.ImageURL, &images); err != nil {
		return q, err
	}
	if err := fromJSON(text, &q.Text); err != nil {
		return q, fmt.Errorf("question %s: text: %w", q.ID, err)
	}
	if err := fromJSON(options, &q.Options); err != nil {
		return q, fmt.Errorf("question %s: options: %w", q.ID, err)
	}
	if err := fromJSON(indices, &q.CorrectIndices); err != nil {
		return q, fmt.Errorf("question %s: correct indices: %w", q.ID, err)
	}
	if err := fromJSON(hint, &q.Hint); err != nil {
		return q, fmt.Errorf("question %s: hint: %w", q.ID, err)
	}
	if err := fromJSON(images, &q.OptionImages); err != nil {
		return q, fmt.Errorf("question %s: option images: %w", q.ID, err)
	}
	return q, nil
}

const questionColumns = `id, module_id, step_id, kind, text, options, correct_index,
	correct_indices, reference_answer, hint, difficulty, image_url, option_images`

// GetQuestion returns a question by ID, or nil if absent.
func (s *Store) GetQuestion(id string) (*model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuestions returns all questions, optionally filtered by module.
// An empty moduleID means no filtering.
func (s *Store) ListQuestions(moduleID string) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions`
	var args []any
	if moduleID != "" {
		query += ` WHERE module_id = ?`
		args = append(args, moduleID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteQuestion removes a question by ID.
func (s *Store) DeleteQuestion(id string) error {
	_, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	return err
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// UpsertTest stores a test, replacing any existing row with the same ID.
func (s *Store) UpsertTest(t model.Test) error {
	title, err := asJSON(t.Title)
	if err != nil {
		return fmt.Errorf("test %s: %w", t.ID, err)
	}
	ids, err := asJSON(t.QuestionIDs)
	if err != nil {
		return fmt.Errorf("test %s: %w", t.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tests (id, module_id, title, question_ids, time_limit_minutes, pass_score_percent)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   module_id = excluded.module_id, title = excluded.title, question_ids = excluded.question_ids,
		   time_limit_minutes = excluded.time_limit_minutes, pass_score_percent = excluded.pass_score_percent`,
		t.ID, t.ModuleID, title, ids, t.TimeLimitMinutes, t.PassScorePercent,
	)
	return err
}

func scanTest(scan func(...any) error) (model.Test, error) {
	var t model.Test
	var title, ids string
	if err := scan(&t.ID, &t.ModuleID, &title, &ids, &t.TimeLimitMinutes, &t.PassScorePercent); err != nil {
		return t, err
	}
	if err := fromJSON(title, &t.Title); err != nil {
		return t, fmt.Errorf("test %s: title: %w", t.ID, err)
	}
	if err := fromJSON(ids, &t.QuestionIDs); err != nil {
		return t, fmt.Errorf("test %s: question ids: %w", t.ID, err)
	}
	return t, nil
}

const testColumns = `id, module_id, title, question_ids, time_limit_minutes, pass_score_percent`

// GetTest returns a test by ID, or nil if absent.
func (s *Store) GetTest(id string) (*model.Test, error) {
	row := s.db.QueryRow(`SELECT `+testColumns+` FROM tests WHERE id = ?`, id)
	t, err := scanTest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTests returns all tests, optionally filtered by module.
func (s *Store) ListTests(moduleID string) ([]model.Test, error) {
	query := `SELECT ` + testColumns + ` FROM tests`
	var args []any
	if moduleID != "" {
		query += ` WHERE module_id = ?`
		args = append(args, moduleID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tests []model.Test
	for rows.Next() {
		t, err := scanTest(rows.Scan)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// DeleteTest removes a test by ID.
func (s *Store) DeleteTest(id string) error {
	_, err := s.db.Exec(`DELETE FROM tests WHERE id = ?`, id)
	return err
}
