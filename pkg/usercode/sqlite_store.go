package usercode

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable Store implementation for a single node
// process: one table, content-addressed the same way InMemoryStore
// is, so the two are interchangeable behind the Store interface.
// Nested structures are stored as JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS user_codes (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		submitter_verify_key TEXT NOT NULL,
		code_hash TEXT NOT NULL,
		raw_source TEXT NOT NULL,
		rewritten_source TEXT NOT NULL,
		service_func_name TEXT NOT NULL,
		unique_func_name TEXT NOT NULL,
		user_unique_func_name TEXT NOT NULL,
		input_kwarg_names JSON,
		input_policy JSON,
		output_policy JSON,
		approval JSON,
		submit_time DATETIME NOT NULL,
		uses_domain INTEGER NOT NULL DEFAULT 0,
		nested_requests JSON,
		nested_codes JSON,
		worker_pool_id TEXT,
		node_uid TEXT,
		environment JSON,
		UNIQUE(submitter_verify_key, code_hash)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Create(record *contracts.UserCode) error {
	query := `INSERT INTO user_codes (
		id, version, submitter_verify_key, code_hash, raw_source, rewritten_source,
		service_func_name, unique_func_name, user_unique_func_name,
		input_kwarg_names, input_policy, output_policy, approval,
		submit_time, uses_domain, nested_requests, nested_codes,
		worker_pool_id, node_uid, environment
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args, err := marshalRecordColumns(record)
	if err != nil {
		return fmt.Errorf("marshal user code columns: %w", err)
	}

	_, err = s.db.ExecContext(context.Background(), query, args...)
	if err != nil {
		if existing, ok := s.FindByKey(record.SubmitterVerifyKey, record.CodeHash); ok {
			return &contracts.Duplicate{ExistingID: existing.ID}
		}
		return fmt.Errorf("insert user code: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*contracts.UserCode, error) {
	query := selectColumns + ` WHERE id = ?`
	return s.queryOne(query, id)
}

func (s *SQLiteStore) Update(record *contracts.UserCode) error {
	query := `UPDATE user_codes SET
		version = ?, submitter_verify_key = ?, code_hash = ?, raw_source = ?, rewritten_source = ?,
		service_func_name = ?, unique_func_name = ?, user_unique_func_name = ?,
		input_kwarg_names = ?, input_policy = ?, output_policy = ?, approval = ?,
		submit_time = ?, uses_domain = ?, nested_requests = ?, nested_codes = ?,
		worker_pool_id = ?, node_uid = ?, environment = ?
	WHERE id = ?`

	args, err := marshalRecordColumns(record)
	if err != nil {
		return fmt.Errorf("marshal user code columns: %w", err)
	}
	args = append(args[1:], args[0]) // id moves to the WHERE clause at the end

	result, err := s.db.ExecContext(context.Background(), query, args...)
	if err != nil {
		return fmt.Errorf("update user code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user code %s not found", record.ID)
	}
	return nil
}

func (s *SQLiteStore) FindByKey(submitter contracts.VerifyKey, codeHash string) (*contracts.UserCode, bool) {
	query := selectColumns + ` WHERE submitter_verify_key = ? AND code_hash = ?`
	record, err := s.queryOne(query, string(submitter), codeHash)
	if err != nil {
		return nil, false
	}
	return record, true
}

func (s *SQLiteStore) List() ([]*contracts.UserCode, error) {
	rows, err := s.db.QueryContext(context.Background(), selectColumns+` ORDER BY submit_time DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.UserCode
	for rows.Next() {
		record, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT id, version, submitter_verify_key, code_hash, raw_source, rewritten_source,
		service_func_name, unique_func_name, user_unique_func_name,
		input_kwarg_names, input_policy, output_policy, approval,
		submit_time, uses_domain, nested_requests, nested_codes,
		worker_pool_id, node_uid, environment
	FROM user_codes`

func (s *SQLiteStore) queryOne(query string, args ...interface{}) (*contracts.UserCode, error) {
	row := s.db.QueryRowContext(context.Background(), query, args...)
	return scanRecordRow(row)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// queryOne and List share one scan routine.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecordRow(row rowScanner) (*contracts.UserCode, error) {
	var (
		id, submitterKey, codeHash, rawSource, rewrittenSource string
		serviceFuncName, uniqueFuncName, userUniqueFuncName    string
		inputKwargNamesJSON, inputPolicyJSON, outputPolicyJSON string
		approvalJSON, nestedRequestsJSON, nestedCodesJSON      string
		environmentJSON                                        sql.NullString
		workerPoolID, nodeUID                                  sql.NullString
		submitTime                                             string
		usesDomain                                             int
		version                                                int
	)
	err := row.Scan(
		&id, &version, &submitterKey, &codeHash, &rawSource, &rewrittenSource,
		&serviceFuncName, &uniqueFuncName, &userUniqueFuncName,
		&inputKwargNamesJSON, &inputPolicyJSON, &outputPolicyJSON, &approvalJSON,
		&submitTime, &usesDomain, &nestedRequestsJSON, &nestedCodesJSON,
		&workerPoolID, &nodeUID, &environmentJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user code not found")
		}
		return nil, err
	}

	record := &contracts.UserCode{
		Version:            contracts.RecordVersion(version),
		ID:                 id,
		SubmitterVerifyKey: contracts.VerifyKey(submitterKey),
		RawSource:          rawSource,
		RewrittenSource:    rewrittenSource,
		CodeHash:           codeHash,
		ServiceFuncName:    serviceFuncName,
		UniqueFuncName:     uniqueFuncName,
		UserUniqueFuncName: userUniqueFuncName,
		SubmitTime:         parseTime(submitTime),
		UsesDomain:         usesDomain != 0,
		WorkerPoolID:       workerPoolID.String,
		NodeUID:            nodeUID.String,
	}

	if err := unmarshalIfPresent(inputKwargNamesJSON, &record.InputKwargNames); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(inputPolicyJSON, &record.InputPolicy); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(outputPolicyJSON, &record.OutputPolicy); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(approvalJSON, &record.Approval); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(nestedRequestsJSON, &record.NestedRequests); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(nestedCodesJSON, &record.NestedCodes); err != nil {
		return nil, err
	}
	if environmentJSON.Valid {
		if err := unmarshalIfPresent(environmentJSON.String, &record.Environment); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func marshalRecordColumns(record *contracts.UserCode) ([]interface{}, error) {
	inputKwargNames, err := json.Marshal(record.InputKwargNames)
	if err != nil {
		return nil, err
	}
	inputPolicy, err := json.Marshal(record.InputPolicy)
	if err != nil {
		return nil, err
	}
	outputPolicy, err := json.Marshal(record.OutputPolicy)
	if err != nil {
		return nil, err
	}
	approvalColl, err := json.Marshal(record.Approval)
	if err != nil {
		return nil, err
	}
	nestedRequests, err := json.Marshal(record.NestedRequests)
	if err != nil {
		return nil, err
	}
	nestedCodes, err := json.Marshal(record.NestedCodes)
	if err != nil {
		return nil, err
	}
	environment, err := json.Marshal(record.Environment)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		record.ID, int(record.Version), string(record.SubmitterVerifyKey), record.CodeHash,
		record.RawSource, record.RewrittenSource,
		record.ServiceFuncName, record.UniqueFuncName, record.UserUniqueFuncName,
		string(inputKwargNames), string(inputPolicy), string(outputPolicy), string(approvalColl),
		record.SubmitTime.UTC().Format(time.RFC3339Nano), boolToInt(record.UsesDomain),
		string(nestedRequests), string(nestedCodes),
		record.WorkerPoolID, record.NodeUID, string(environment),
	}, nil
}

func unmarshalIfPresent(raw string, dest interface{}) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
