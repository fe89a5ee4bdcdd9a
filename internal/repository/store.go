// Package repository implements Storage (spec §4.A): a transactional
// key-relational store over the SQLite database opened by
// internal/database, plus the bulk writers each ingest phase needs.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/utils"
	"github.com/sourcequal/codequal/pkg/logger"
)

// Store is Storage (spec §4.A): every write touching one Repository is
// transactional per job phase; readers tolerate concurrent writers at
// read-committed isolation (SQLite's default).
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, logger logger.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func newID() string { return utils.NewID() }

// CreateRepository inserts a new Repository in status pending. Remote
// repositories are unique on (origin_url, branch); a collision surfaces as
// errs.ErrDuplicateRepository so callers report "already imported" (spec
// S4) without touching the existing row.
func (s *Store) CreateRepository(ctx context.Context, r *model.Repository) (string, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, source, origin_url, branch, archive_path, status, file_count, symbol_count, stars, primary_language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)`,
		r.ID, r.Source, nullable(r.OriginURL), nullable(r.Branch), nullable(r.ArchivePath), r.Status,
		r.Stars, nullable(r.PrimaryLanguage), now, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return "", errs.ErrDuplicateRepository
		}
		return "", errs.Wrap(errs.Transient, "create repository", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return r.ID, nil
}

// UpdateRepositoryStatus atomically updates status (and optionally counts
// and a failure reason) for one Repository.
func (s *Store) UpdateRepositoryStatus(ctx context.Context, id string, status model.RepoStatus, opts ...StatusOption) error {
	u := statusUpdate{}
	for _, o := range opts {
		o(&u)
	}

	query := "UPDATE repositories SET status = ?, updated_at = ?"
	args := []any{status, time.Now()}
	if u.fileCount != nil {
		query += ", file_count = ?"
		args = append(args, *u.fileCount)
	}
	if u.symbolCount != nil {
		query += ", symbol_count = ?"
		args = append(args, *u.symbolCount)
	}
	if u.failureReason != nil {
		query += ", failure_reason = ?"
		args = append(args, *u.failureReason)
	}
	if u.primaryLanguage != nil {
		query += ", primary_language = ?"
		args = append(args, *u.primaryLanguage)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.Transient, "update repository status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrRecordNotFound
	}
	return nil
}

type statusUpdate struct {
	fileCount       *int
	symbolCount     *int
	failureReason   *string
	primaryLanguage *string
}

type StatusOption func(*statusUpdate)

func WithCounts(fileCount, symbolCount int) StatusOption {
	return func(u *statusUpdate) { u.fileCount = &fileCount; u.symbolCount = &symbolCount }
}

func WithFailureReason(reason string) StatusOption {
	return func(u *statusUpdate) { u.failureReason = &reason }
}

func WithPrimaryLanguage(lang string) StatusOption {
	return func(u *statusUpdate) { u.primaryLanguage = &lang }
}

func (s *Store) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, COALESCE(origin_url,''), COALESCE(branch,''), COALESCE(archive_path,''),
		       status, COALESCE(failure_reason,''), file_count, symbol_count, stars, COALESCE(primary_language,''),
		       created_at, updated_at
		FROM repositories WHERE id = ?`, id)

	var r model.Repository
	if err := row.Scan(&r.ID, &r.Source, &r.OriginURL, &r.Branch, &r.ArchivePath, &r.Status, &r.FailureReason,
		&r.FileCount, &r.SymbolCount, &r.Stars, &r.PrimaryLanguage, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrRecordNotFound
		}
		return nil, errs.Wrap(errs.Transient, "get repository", err)
	}
	return &r, nil
}

// ListRepositories returns every Repository, for the periodic jobs that
// sweep all repos (index cleanup, in-flight status polling) rather than
// operating on one at a time.
func (s *Store) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, COALESCE(origin_url,''), COALESCE(branch,''), COALESCE(archive_path,''),
		       status, COALESCE(failure_reason,''), file_count, symbol_count, stars, COALESCE(primary_language,''),
		       created_at, updated_at
		FROM repositories`)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list repositories", err)
	}
	defer rows.Close()

	var repos []*model.Repository
	for rows.Next() {
		var r model.Repository
		if err := rows.Scan(&r.ID, &r.Source, &r.OriginURL, &r.Branch, &r.ArchivePath, &r.Status, &r.FailureReason,
			&r.FileCount, &r.SymbolCount, &r.Stars, &r.PrimaryLanguage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan repository", err)
		}
		repos = append(repos, &r)
	}
	return repos, rows.Err()
}

func (s *Store) FindRemoteRepository(ctx context.Context, originURL, branch string) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM repositories WHERE origin_url = ? AND branch = ?`, originURL, branch)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrRecordNotFound
		}
		return nil, errs.Wrap(errs.Transient, "find remote repository", err)
	}
	return s.GetRepository(ctx, id)
}

// ReplaceFilesAndSymbols atomically clears and repopulates the Files and
// Symbols of a Repository: "re-ingest replaces them atomically" (spec §3
// Lifecycle). Called once per ingest with the full parsed set.
func (s *Store) ReplaceFilesAndSymbols(ctx context.Context, repoID string, files []*model.File, symbols []*model.Symbol) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Transient, "begin replace tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id IN (SELECT id FROM files WHERE repo_id = ?)`, repoID); err != nil {
		return errs.Wrap(errs.Transient, "delete old symbols", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM call_edges WHERE file_id IN (SELECT id FROM files WHERE repo_id = ?)`, repoID); err != nil {
		return errs.Wrap(errs.Transient, "delete old call edges", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM import_edges WHERE from_file_id IN (SELECT id FROM files WHERE repo_id = ?)`, repoID); err != nil {
		return errs.Wrap(errs.Transient, "delete old import edges", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM files WHERE repo_id = ?`, repoID); err != nil {
		return errs.Wrap(errs.Transient, "delete old files", err)
	}

	fileStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, repo_id, path, language, byte_size, line_count, sha256, parse_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.Transient, "prepare file insert", err)
	}
	defer fileStmt.Close()

	for _, f := range files {
		if f.ID == "" {
			f.ID = newID()
		}
		f.RepoID = repoID
		if _, err = fileStmt.ExecContext(ctx, f.ID, f.RepoID, f.Path, f.Language, f.ByteSize, f.LineCount, f.SHA256, nullable(f.ParseErr)); err != nil {
			return errs.Wrap(errs.Transient, "insert file", err)
		}
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (id, file_id, name, kind, line_start, line_end, signature, docstring, has_docstring,
		                      docstring_length, cyclomatic_complexity, maintainability_index, mi_approximated,
		                      loc, comment_lines, blank_lines)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.Transient, "prepare symbol insert", err)
	}
	defer symStmt.Close()

	for _, sym := range symbols {
		if sym.ID == "" {
			sym.ID = newID()
		}
		if _, err = symStmt.ExecContext(ctx, sym.ID, sym.FileID, sym.Name, sym.Kind, sym.LineStart, sym.LineEnd,
			sym.Signature, nullable(sym.Docstring), sym.HasDocstring, sym.DocstringLength, sym.CyclomaticComplexity,
			sym.MaintainabilityIndex, sym.MIApproximated, sym.LOC, sym.CommentLines, sym.BlankLines); err != nil {
			return errs.Wrap(errs.Transient, "insert symbol", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errs.Wrap(errs.Transient, "commit replace tx", err)
	}
	return nil
}

// BulkInsertCallEdges and BulkInsertImportEdges run inside one transaction
// each, scoped to the CallGraphBuilder fan-out phase (spec §4.A guarantee).
func (s *Store) BulkInsertCallEdges(ctx context.Context, edges []*model.CallEdge) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO call_edges (id, from_symbol_id, to_name, to_symbol_id, file_id, line, is_external)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if e.ID == "" {
				e.ID = newID()
			}
			if _, err := stmt.ExecContext(ctx, e.ID, e.FromSymbolID, e.ToName, nullable(e.ToSymbolID), e.FileID, e.Line, e.IsExternal); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) BulkInsertImportEdges(ctx context.Context, edges []*model.ImportEdge) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO import_edges (id, from_file_id, to_file_id, to_module_name, kind)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if e.ID == "" {
				e.ID = newID()
			}
			if _, err := stmt.ExecContext(ctx, e.ID, e.FromFileID, nullable(e.ToFileID), nullable(e.ToModuleName), e.Kind); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReplaceVulnerabilities(ctx context.Context, repoID string, vulns []*model.Vulnerability) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE repo_id = ?`, repoID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vulnerabilities (id, repo_id, file_id, line, rule_id, severity, cwe, category, description, confidence, code_snippet)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, v := range vulns {
			if v.ID == "" {
				v.ID = newID()
			}
			v.RepoID = repoID
			if _, err := stmt.ExecContext(ctx, v.ID, v.RepoID, v.FileID, v.Line, v.RuleID, v.Severity, nullable(v.CWE),
				v.Category, v.Description, v.Confidence, v.CodeSnippet); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReplaceCodeSmells(ctx context.Context, repoID string, smells []*model.CodeSmell) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_smells WHERE repo_id = ?`, repoID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO code_smells (id, repo_id, smell_type, severity, title, description, suggestion, file_id, symbol_id, location)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range smells {
			if c.ID == "" {
				c.ID = newID()
			}
			c.RepoID = repoID
			if _, err := stmt.ExecContext(ctx, c.ID, c.RepoID, c.SmellType, c.Severity, c.Title, c.Description,
				c.Suggestion, c.FileID, nullable(c.SymbolID), c.Location); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReplaceDuplicationPairs(ctx context.Context, repoID string, pairs []*model.DuplicationPair) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM duplication_pairs WHERE repo_id = ?`, repoID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO duplication_pairs (id, repo_id, file1_id, file1_range, file2_id, file2_range, similarity, duplicate_lines, duplicate_tokens, snippet)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range pairs {
			if p.ID == "" {
				p.ID = newID()
			}
			p.RepoID = repoID
			if p.File2ID < p.File1ID {
				p.File1ID, p.File2ID = p.File2ID, p.File1ID
				p.File1Range, p.File2Range = p.File2Range, p.File1Range
			}
			if _, err := stmt.ExecContext(ctx, p.ID, p.RepoID, p.File1ID, p.File1Range, p.File2ID, p.File2Range,
				p.Similarity, p.DuplicateLines, p.DuplicateTokens, p.Snippet); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSymbols returns symbols for a repository, optionally filtered by
// language and/or kind. Readers tolerate concurrent writers (read-committed
// is SQLite's default transaction isolation under WAL).
func (s *Store) ListSymbols(ctx context.Context, repoID string, filter SymbolFilter) ([]*model.Symbol, error) {
	query := `
		SELECT s.id, s.file_id, s.name, s.kind, s.line_start, s.line_end, s.signature, COALESCE(s.docstring,''),
		       s.has_docstring, s.docstring_length, s.cyclomatic_complexity, s.maintainability_index,
		       s.mi_approximated, s.loc, s.comment_lines, s.blank_lines
		FROM symbols s JOIN files f ON f.id = s.file_id
		WHERE f.repo_id = ?`
	args := []any{repoID}
	if filter.Language != "" {
		query += " AND f.language = ?"
		args = append(args, filter.Language)
	}
	if filter.Kind != "" {
		query += " AND s.kind = ?"
		args = append(args, filter.Kind)
	}
	query += " ORDER BY f.path, s.line_start"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list symbols", err)
	}
	defer rows.Close()

	var out []*model.Symbol
	for rows.Next() {
		var sym model.Symbol
		if err := rows.Scan(&sym.ID, &sym.FileID, &sym.Name, &sym.Kind, &sym.LineStart, &sym.LineEnd, &sym.Signature,
			&sym.Docstring, &sym.HasDocstring, &sym.DocstringLength, &sym.CyclomaticComplexity, &sym.MaintainabilityIndex,
			&sym.MIApproximated, &sym.LOC, &sym.CommentLines, &sym.BlankLines); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan symbol", err)
		}
		out = append(out, &sym)
	}
	return out, rows.Err()
}

type SymbolFilter struct {
	Language string
	Kind     model.SymbolKind
}

func (s *Store) ListFiles(ctx context.Context, repoID string) ([]*model.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, path, language, byte_size, line_count, sha256, COALESCE(parse_error,'')
		FROM files WHERE repo_id = ? ORDER BY path`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list files", err)
	}
	defer rows.Close()

	var out []*model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.RepoID, &f.Path, &f.Language, &f.ByteSize, &f.LineCount, &f.SHA256, &f.ParseErr); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan file", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Store) GetFileByPath(ctx context.Context, repoID, path string) (*model.File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, path, language, byte_size, line_count, sha256, COALESCE(parse_error,'')
		FROM files WHERE repo_id = ? AND path = ?`, repoID, path)
	var f model.File
	if err := row.Scan(&f.ID, &f.RepoID, &f.Path, &f.Language, &f.ByteSize, &f.LineCount, &f.SHA256, &f.ParseErr); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrRecordNotFound
		}
		return nil, errs.Wrap(errs.Transient, "get file by path", err)
	}
	return &f, nil
}

func (s *Store) ListCallEdges(ctx context.Context, repoID string) ([]*model.CallEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.from_symbol_id, e.to_name, COALESCE(e.to_symbol_id,''), e.file_id, e.line, e.is_external
		FROM call_edges e JOIN files f ON f.id = e.file_id WHERE f.repo_id = ?`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list call edges", err)
	}
	defer rows.Close()

	var out []*model.CallEdge
	for rows.Next() {
		var e model.CallEdge
		if err := rows.Scan(&e.ID, &e.FromSymbolID, &e.ToName, &e.ToSymbolID, &e.FileID, &e.Line, &e.IsExternal); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan call edge", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) ListImportEdges(ctx context.Context, repoID string) ([]*model.ImportEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.from_file_id, COALESCE(e.to_file_id,''), COALESCE(e.to_module_name,''), e.kind
		FROM import_edges e JOIN files f ON f.id = e.from_file_id WHERE f.repo_id = ?`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list import edges", err)
	}
	defer rows.Close()

	var out []*model.ImportEdge
	for rows.Next() {
		var e model.ImportEdge
		if err := rows.Scan(&e.ID, &e.FromFileID, &e.ToFileID, &e.ToModuleName, &e.Kind); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan import edge", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) ListVulnerabilities(ctx context.Context, repoID string) ([]*model.Vulnerability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, file_id, line, rule_id, severity, COALESCE(cwe,''), category, description, confidence, code_snippet
		FROM vulnerabilities WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list vulnerabilities", err)
	}
	defer rows.Close()

	var out []*model.Vulnerability
	for rows.Next() {
		var v model.Vulnerability
		if err := rows.Scan(&v.ID, &v.RepoID, &v.FileID, &v.Line, &v.RuleID, &v.Severity, &v.CWE, &v.Category,
			&v.Description, &v.Confidence, &v.CodeSnippet); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan vulnerability", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *Store) ListCodeSmells(ctx context.Context, repoID string) ([]*model.CodeSmell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, smell_type, severity, title, description, suggestion, file_id, COALESCE(symbol_id,''), location
		FROM code_smells WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list code smells", err)
	}
	defer rows.Close()

	var out []*model.CodeSmell
	for rows.Next() {
		var c model.CodeSmell
		if err := rows.Scan(&c.ID, &c.RepoID, &c.SmellType, &c.Severity, &c.Title, &c.Description, &c.Suggestion,
			&c.FileID, &c.SymbolID, &c.Location); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan code smell", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) ListDuplicationPairs(ctx context.Context, repoID string) ([]*model.DuplicationPair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, file1_id, file1_range, file2_id, file2_range, similarity, duplicate_lines, duplicate_tokens, snippet
		FROM duplication_pairs WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list duplication pairs", err)
	}
	defer rows.Close()

	var out []*model.DuplicationPair
	for rows.Next() {
		var p model.DuplicationPair
		if err := rows.Scan(&p.ID, &p.RepoID, &p.File1ID, &p.File1Range, &p.File2ID, &p.File2Range, &p.Similarity,
			&p.DuplicateLines, &p.DuplicateTokens, &p.Snippet); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan duplication pair", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) GetQualityGateConfig(ctx context.Context, repoID string) (*model.QualityGateConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_id, max_complexity, max_code_smells, max_critical_smells, max_vulnerabilities,
		       max_critical_vulnerabilities, min_quality_score, max_duplication_percentage, block_on_failure
		FROM quality_gate_configs WHERE repo_id = ?`, repoID)

	var c model.QualityGateConfig
	if err := row.Scan(&c.RepoID, &c.MaxComplexity, &c.MaxCodeSmells, &c.MaxCriticalSmells, &c.MaxVulnerabilities,
		&c.MaxCriticalVulnerabilities, &c.MinQualityScore, &c.MaxDuplicationPercentage, &c.BlockOnFailure); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrRecordNotFound
		}
		return nil, errs.Wrap(errs.Transient, "get quality gate config", err)
	}
	return &c, nil
}

func (s *Store) UpsertQualityGateConfig(ctx context.Context, c *model.QualityGateConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_gate_configs (repo_id, max_complexity, max_code_smells, max_critical_smells,
			max_vulnerabilities, max_critical_vulnerabilities, min_quality_score, max_duplication_percentage, block_on_failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			max_complexity = excluded.max_complexity,
			max_code_smells = excluded.max_code_smells,
			max_critical_smells = excluded.max_critical_smells,
			max_vulnerabilities = excluded.max_vulnerabilities,
			max_critical_vulnerabilities = excluded.max_critical_vulnerabilities,
			min_quality_score = excluded.min_quality_score,
			max_duplication_percentage = excluded.max_duplication_percentage,
			block_on_failure = excluded.block_on_failure`,
		c.RepoID, c.MaxComplexity, c.MaxCodeSmells, c.MaxCriticalSmells, c.MaxVulnerabilities,
		c.MaxCriticalVulnerabilities, c.MinQualityScore, c.MaxDuplicationPercentage, c.BlockOnFailure)
	if err != nil {
		return errs.Wrap(errs.Transient, "upsert quality gate config", err)
	}
	return nil
}

func (s *Store) InsertCICDRun(ctx context.Context, r *model.CICDRun) (string, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cicd_runs (id, repo_id, branch, commit_sha, pr_number, triggered_by, status, gate_result, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RepoID, nullable(r.Branch), nullable(r.Commit), nullableInt(r.PRNumber), r.TriggeredBy, r.Status,
		r.GateResult, r.CreatedAt, r.CompletedAt)
	if err != nil {
		return "", errs.Wrap(errs.Transient, "insert cicd run", err)
	}
	return r.ID, nil
}

func (s *Store) UpdateCICDRun(ctx context.Context, id string, status model.RunStatus, gateResult string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE cicd_runs SET status = ?, gate_result = ?, completed_at = ? WHERE id = ?`,
		status, gateResult, now, id)
	if err != nil {
		return errs.Wrap(errs.Transient, "update cicd run", err)
	}
	return nil
}

func (s *Store) GetCICDRun(ctx context.Context, id string) (*model.CICDRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, COALESCE(branch,''), COALESCE(commit_sha,''), COALESCE(pr_number,0), triggered_by, status,
		       gate_result, created_at, completed_at
		FROM cicd_runs WHERE id = ?`, id)

	var r model.CICDRun
	if err := row.Scan(&r.ID, &r.RepoID, &r.Branch, &r.Commit, &r.PRNumber, &r.TriggeredBy, &r.Status,
		&r.GateResult, &r.CreatedAt, &r.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrRecordNotFound
		}
		return nil, errs.Wrap(errs.Transient, "get cicd run", err)
	}
	return &r, nil
}

func (s *Store) ListCICDRuns(ctx context.Context, repoID string) ([]*model.CICDRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, COALESCE(branch,''), COALESCE(commit_sha,''), COALESCE(pr_number,0), triggered_by, status,
		       gate_result, created_at, completed_at
		FROM cicd_runs WHERE repo_id = ? ORDER BY created_at DESC`, repoID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "list cicd runs", err)
	}
	defer rows.Close()

	var out []*model.CICDRun
	for rows.Next() {
		var r model.CICDRun
		if err := rows.Scan(&r.ID, &r.RepoID, &r.Branch, &r.Commit, &r.PRNumber, &r.TriggeredBy, &r.Status,
			&r.GateResult, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, errs.Wrap(errs.Transient, "scan cicd run", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Transient, "begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return errs.Wrap(errs.Transient, "tx", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Transient, "commit tx", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && (containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: UNIQUE"))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
