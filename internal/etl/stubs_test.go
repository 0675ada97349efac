package etl

import (
	"context"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
)

// In-memory repository stubs. They keep enough state for reconciliation
// semantics to be observable across runs.

type stubBatchRepo struct {
	records   map[uuid.UUID]domain.BatchRecord
	order     []uuid.UUID
	locked    bool
	createErr error

	// cancelAfterCreate cancels the run's context once the ledger row
	// exists, so the batch aborts between Begin and the first step.
	cancelAfterCreate context.CancelFunc
}

func newStubBatchRepo() *stubBatchRepo {
	return &stubBatchRepo{records: make(map[uuid.UUID]domain.BatchRecord)}
}

func (s *stubBatchRepo) Create(ctx context.Context, record domain.BatchRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.records[record.BatchID] = record
	s.order = append(s.order, record.BatchID)
	if s.cancelAfterCreate != nil {
		s.cancelAfterCreate()
	}
	return nil
}

func (s *stubBatchRepo) Finalize(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, errorMessage *string, finishedAt time.Time) error {
	// A real pool write fails once the context is cancelled.
	if err := ctx.Err(); err != nil {
		return err
	}
	record, ok := s.records[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	if record.Status.Terminal() {
		return domain.ErrInvalidState
	}
	record.Status = status
	record.Counts = counts
	record.ErrorMessage = errorMessage
	record.FinishedAt = &finishedAt
	s.records[batchID] = record
	return nil
}

func (s *stubBatchRepo) GetByID(ctx context.Context, batchID uuid.UUID) (domain.BatchRecord, error) {
	record, ok := s.records[batchID]
	if !ok {
		return domain.BatchRecord{}, domain.ErrNotFound
	}
	return record, nil
}

func (s *stubBatchRepo) Latest(ctx context.Context) (domain.BatchRecord, error) {
	if len(s.order) == 0 {
		return domain.BatchRecord{}, domain.ErrNotFound
	}
	return s.records[s.order[len(s.order)-1]], nil
}

func (s *stubBatchRepo) History(ctx context.Context, since time.Time) ([]domain.BatchRecord, error) {
	var result []domain.BatchRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		record := s.records[s.order[i]]
		if record.StartedAt.After(since) {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *stubBatchRepo) AcquireRunLock(ctx context.Context) (func(), error) {
	if s.locked {
		return nil, domain.ErrConcurrentBatch
	}
	s.locked = true
	return func() { s.locked = false }, nil
}

type stubAuditRepo struct {
	audits    []domain.AuditEntry
	errors    []domain.ErrorEntry
	auditErr  error
	recordErr error
	nextID    int64
}

func (s *stubAuditRepo) RecordAudit(ctx context.Context, entry domain.AuditEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.auditErr != nil {
		return 0, s.auditErr
	}
	s.nextID++
	entry.ID = s.nextID
	s.audits = append(s.audits, entry)
	return entry.ID, nil
}

func (s *stubAuditRepo) RecordError(ctx context.Context, entry domain.ErrorEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.recordErr != nil {
		return 0, s.recordErr
	}
	s.nextID++
	entry.ID = s.nextID
	s.errors = append(s.errors, entry)
	return entry.ID, nil
}

func (s *stubAuditRepo) ListAudits(ctx context.Context, batchID uuid.UUID) ([]domain.AuditEntry, error) {
	var result []domain.AuditEntry
	for _, entry := range s.audits {
		if entry.BatchID == batchID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (s *stubAuditRepo) ListErrors(ctx context.Context, batchID uuid.UUID) ([]domain.ErrorEntry, error) {
	var result []domain.ErrorEntry
	for _, entry := range s.errors {
		if entry.BatchID == batchID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type stubSourceRepo struct {
	tenants     []uuid.UUID
	users       []domain.SourceUser
	projects    []domain.SourceProject
	tasks       []domain.SourceTask
	timeEntries []domain.SourceTimeEntry

	usersErr error
	tasksErr error
}

func (s *stubSourceRepo) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.tenants, nil
}

func (s *stubSourceRepo) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceUser, error) {
	if s.usersErr != nil {
		return nil, s.usersErr
	}
	return s.users, nil
}

func (s *stubSourceRepo) ListProjects(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceProject, error) {
	return s.projects, nil
}

func (s *stubSourceRepo) ListTasks(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceTask, error) {
	if s.tasksErr != nil {
		return nil, s.tasksErr
	}
	return s.tasks, nil
}

func (s *stubSourceRepo) ListTimeEntries(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceTimeEntry, error) {
	return s.timeEntries, nil
}

type stubUserDims struct {
	current    map[uuid.UUID]domain.DimUser
	maxVersion map[uuid.UUID]int
	expiries   []repository.DimExpiry[uuid.UUID]
	nextKey    int64
	expired    int
	inserted   int
}

func newStubUserDims() *stubUserDims {
	return &stubUserDims{current: make(map[uuid.UUID]domain.DimUser), maxVersion: make(map[uuid.UUID]int)}
}

func (s *stubUserDims) ListCurrent(ctx context.Context, tenantID uuid.UUID) ([]domain.DimUser, error) {
	var rows []domain.DimUser
	for _, row := range s.current {
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *stubUserDims) Reconcile(ctx context.Context, expire *repository.DimExpiry[uuid.UUID], insert *domain.DimUser) error {
	if expire != nil {
		delete(s.current, expire.Key)
		s.expiries = append(s.expiries, *expire)
		s.expired++
	}
	if insert != nil {
		row := *insert
		s.nextKey++
		row.UserKey = s.nextKey
		s.current[row.UserID] = row
		if row.Version > s.maxVersion[row.UserID] {
			s.maxVersion[row.UserID] = row.Version
		}
		s.inserted++
	}
	return nil
}

func (s *stubUserDims) CurrentKeys(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int64, error) {
	keys := make(map[uuid.UUID]int64, len(s.current))
	for id, row := range s.current {
		keys[id] = row.UserKey
	}
	return keys, nil
}

func (s *stubUserDims) MaxVersion(ctx context.Context, key uuid.UUID) (int, error) {
	return s.maxVersion[key], nil
}

type stubProjectDims struct {
	current    map[uuid.UUID]domain.DimProject
	maxVersion map[uuid.UUID]int
	nextKey    int64
	expired    int
	inserted   int
}

func newStubProjectDims() *stubProjectDims {
	return &stubProjectDims{current: make(map[uuid.UUID]domain.DimProject), maxVersion: make(map[uuid.UUID]int)}
}

func (s *stubProjectDims) ListCurrent(ctx context.Context, tenantID uuid.UUID) ([]domain.DimProject, error) {
	var rows []domain.DimProject
	for _, row := range s.current {
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *stubProjectDims) Reconcile(ctx context.Context, expire *repository.DimExpiry[uuid.UUID], insert *domain.DimProject) error {
	if expire != nil {
		delete(s.current, expire.Key)
		s.expired++
	}
	if insert != nil {
		row := *insert
		s.nextKey++
		row.ProjectKey = s.nextKey
		s.current[row.ProjectID] = row
		if row.Version > s.maxVersion[row.ProjectID] {
			s.maxVersion[row.ProjectID] = row.Version
		}
		s.inserted++
	}
	return nil
}

func (s *stubProjectDims) CurrentKeys(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int64, error) {
	keys := make(map[uuid.UUID]int64, len(s.current))
	for id, row := range s.current {
		keys[id] = row.ProjectKey
	}
	return keys, nil
}

func (s *stubProjectDims) MaxVersion(ctx context.Context, key uuid.UUID) (int, error) {
	return s.maxVersion[key], nil
}

type stubStatusDims struct {
	current    map[string]domain.DimStatus
	maxVersion map[string]int
	nextKey    int64
}

func newStubStatusDims() *stubStatusDims {
	return &stubStatusDims{current: make(map[string]domain.DimStatus), maxVersion: make(map[string]int)}
}

func (s *stubStatusDims) ListCurrent(ctx context.Context) ([]domain.DimStatus, error) {
	var rows []domain.DimStatus
	for _, row := range s.current {
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *stubStatusDims) Reconcile(ctx context.Context, expire *repository.DimExpiry[string], insert *domain.DimStatus) error {
	if expire != nil {
		delete(s.current, expire.Key)
	}
	if insert != nil {
		row := *insert
		s.nextKey++
		row.StatusKey = s.nextKey
		s.current[row.StatusCode] = row
		if row.Version > s.maxVersion[row.StatusCode] {
			s.maxVersion[row.StatusCode] = row.Version
		}
	}
	return nil
}

func (s *stubStatusDims) CurrentKeys(ctx context.Context) (map[string]int64, error) {
	keys := make(map[string]int64, len(s.current))
	for code, row := range s.current {
		keys[code] = row.StatusKey
	}
	return keys, nil
}

func (s *stubStatusDims) MaxVersion(ctx context.Context, key string) (int, error) {
	return s.maxVersion[key], nil
}

type stubPriorityDims struct {
	current    map[string]domain.DimPriority
	maxVersion map[string]int
	nextKey    int64
}

func newStubPriorityDims() *stubPriorityDims {
	return &stubPriorityDims{current: make(map[string]domain.DimPriority), maxVersion: make(map[string]int)}
}

func (s *stubPriorityDims) ListCurrent(ctx context.Context) ([]domain.DimPriority, error) {
	var rows []domain.DimPriority
	for _, row := range s.current {
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *stubPriorityDims) Reconcile(ctx context.Context, expire *repository.DimExpiry[string], insert *domain.DimPriority) error {
	if expire != nil {
		delete(s.current, expire.Key)
	}
	if insert != nil {
		row := *insert
		s.nextKey++
		row.PriorityKey = s.nextKey
		s.current[row.PriorityCode] = row
		if row.Version > s.maxVersion[row.PriorityCode] {
			s.maxVersion[row.PriorityCode] = row.Version
		}
	}
	return nil
}

func (s *stubPriorityDims) CurrentKeys(ctx context.Context) (map[string]int64, error) {
	keys := make(map[string]int64, len(s.current))
	for code, row := range s.current {
		keys[code] = row.PriorityKey
	}
	return keys, nil
}

func (s *stubPriorityDims) MaxVersion(ctx context.Context, key string) (int, error) {
	return s.maxVersion[key], nil
}

type stubDateDims struct {
	keys map[int]bool
}

func newStubDateDims() *stubDateDims {
	return &stubDateDims{keys: make(map[int]bool)}
}

func (s *stubDateDims) EnsureRange(ctx context.Context, from, to time.Time) (int, error) {
	inserted := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := domain.DateKey(day)
		if !s.keys[key] {
			s.keys[key] = true
			inserted++
		}
	}
	return inserted, nil
}

type stubTaskFacts struct {
	facts     map[uuid.UUID]domain.TaskFact
	inserts   int
	updates   int
	listCalls int
	insertErr error
}

func newStubTaskFacts() *stubTaskFacts {
	return &stubTaskFacts{facts: make(map[uuid.UUID]domain.TaskFact)}
}

func (s *stubTaskFacts) ListExisting(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]domain.TaskFact, error) {
	s.listCalls++
	out := make(map[uuid.UUID]domain.TaskFact, len(s.facts))
	for id, fact := range s.facts {
		out[id] = fact
	}
	return out, nil
}

func (s *stubTaskFacts) Insert(ctx context.Context, fact domain.TaskFact) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.facts[fact.TaskID] = fact
	s.inserts++
	return nil
}

func (s *stubTaskFacts) Update(ctx context.Context, fact domain.TaskFact) error {
	if _, ok := s.facts[fact.TaskID]; !ok {
		return domain.ErrNotFound
	}
	s.facts[fact.TaskID] = fact
	s.updates++
	return nil
}

type stubTimeLogFacts struct {
	facts   map[uuid.UUID]domain.TimeLogFact
	inserts int
	updates int
}

func newStubTimeLogFacts() *stubTimeLogFacts {
	return &stubTimeLogFacts{facts: make(map[uuid.UUID]domain.TimeLogFact)}
}

func (s *stubTimeLogFacts) ListExisting(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]domain.TimeLogFact, error) {
	out := make(map[uuid.UUID]domain.TimeLogFact, len(s.facts))
	for id, fact := range s.facts {
		out[id] = fact
	}
	return out, nil
}

func (s *stubTimeLogFacts) Insert(ctx context.Context, fact domain.TimeLogFact) error {
	s.facts[fact.TimeEntryID] = fact
	s.inserts++
	return nil
}

func (s *stubTimeLogFacts) Update(ctx context.Context, fact domain.TimeLogFact) error {
	if _, ok := s.facts[fact.TimeEntryID]; !ok {
		return domain.ErrNotFound
	}
	s.facts[fact.TimeEntryID] = fact
	s.updates++
	return nil
}

type stubAggRepo struct {
	dailyCalls    int
	workloadCalls int
	rows          int
	err           error
}

func (s *stubAggRepo) RebuildDailyTaskMetrics(ctx context.Context, tenantID uuid.UUID, dateKey int, computedAt time.Time) (int, error) {
	s.dailyCalls++
	return s.rows, s.err
}

func (s *stubAggRepo) RebuildUserWorkload(ctx context.Context, tenantID uuid.UUID, dateKey int, computedAt time.Time) (int, error) {
	s.workloadCalls++
	return s.rows, s.err
}
