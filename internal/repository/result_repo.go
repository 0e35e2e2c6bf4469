package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
)

// ResultRepo persists normalized task results. Rows are immutable once saved:
// a retried task gets a new task id and therefore a new row.
type ResultRepo struct{}

// NewResultRepo returns a repository over the initialized database.
func NewResultRepo() *ResultRepo {
	return &ResultRepo{}
}

// SaveResult inserts a result. Saving the same task id twice is an error.
func (r *ResultRepo) SaveResult(res model.ProcessedResult, contentType model.ContentType) error {
	dataJSON, _ := json.Marshal(res.Data)
	metaJSON, _ := json.Marshal(res.Metadata)
	errorsJSON, _ := json.Marshal(res.Errors)
	warningsJSON, _ := json.Marshal(res.Warnings)

	query := `
		INSERT INTO task_results (task_id, success, content_type, node_type, data, metadata, errors, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		res.TaskID, boolToInt(res.Success), string(contentType), res.Metadata.NodeType,
		string(dataJSON), string(metaJSON), string(errorsJSON), string(warningsJSON),
		time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save result for task %s: %w", res.TaskID, err)
	}
	return nil
}

// LoadResult returns the result for a task id, or nil if none was saved.
func (r *ResultRepo) LoadResult(taskID string) (*model.ProcessedResult, error) {
	query := `
		SELECT task_id, success, data, metadata, errors, warnings
		FROM task_results WHERE task_id = ?
	`
	row := db.QueryRow(query, taskID)

	res, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteResult removes a stored result. It reports whether a row existed.
func (r *ResultRepo) DeleteResult(taskID string) (bool, error) {
	result, err := db.Exec(`DELETE FROM task_results WHERE task_id = ?`, taskID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SearchResults returns results matching a free-text query over task id and
// payload, narrowed by the filter, newest first.
func (r *ResultRepo) SearchResults(query string, filter model.ResultFilter) ([]model.ProcessedResult, error) {
	var conds []string
	var args []interface{}

	if query != "" {
		conds = append(conds, "(task_id LIKE ? OR data LIKE ?)")
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern)
	}
	if filter.NodeType != "" {
		conds = append(conds, "node_type = ?")
		args = append(args, filter.NodeType)
	}
	if filter.ContentType != "" {
		conds = append(conds, "content_type = ?")
		args = append(args, string(filter.ContentType))
	}
	if filter.OnlySuccess {
		conds = append(conds, "success = 1")
	}

	sqlQuery := `SELECT task_id, success, data, metadata, errors, warnings FROM task_results`
	if len(conds) > 0 {
		sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	}
	sqlQuery += " ORDER BY created_at DESC"

	rows, err := db.Query(sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProcessedResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (*model.ProcessedResult, error) {
	var res model.ProcessedResult
	var success int
	var dataStr, metaStr, errorsStr, warningsStr sql.NullString

	err := row.Scan(&res.TaskID, &success, &dataStr, &metaStr, &errorsStr, &warningsStr)
	if err != nil {
		return nil, err
	}

	res.Success = success == 1
	if dataStr.Valid {
		json.Unmarshal([]byte(dataStr.String), &res.Data)
	}
	if metaStr.Valid {
		json.Unmarshal([]byte(metaStr.String), &res.Metadata)
	}
	if errorsStr.Valid {
		json.Unmarshal([]byte(errorsStr.String), &res.Errors)
	}
	if warningsStr.Valid {
		json.Unmarshal([]byte(warningsStr.String), &res.Warnings)
	}
	return &res, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
