package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mailops/internal/mail"
	"mailops/internal/model"
	"mailops/internal/repository"
	"mailops/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

type fakeAccountRepo struct {
	accounts map[uint64]*model.MailboxAccount
	lastSync map[uint64]time.Time
}

func newFakeAccountRepo(accounts ...*model.MailboxAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{
		accounts: make(map[uint64]*model.MailboxAccount),
		lastSync: make(map[uint64]time.Time),
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) Create(_ context.Context, account *model.MailboxAccount) error {
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id uint64) (*model.MailboxAccount, error) {
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) List(_ context.Context) ([]*model.MailboxAccount, error) {
	return r.sorted(), nil
}

func (r *fakeAccountRepo) ListAutoSync(_ context.Context) ([]*model.MailboxAccount, error) {
	var out []*model.MailboxAccount
	for _, a := range r.sorted() {
		if a.AutoSync {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) UpdateLastSync(_ context.Context, id uint64, at time.Time) error {
	r.lastSync[id] = at
	return nil
}

func (r *fakeAccountRepo) sorted() []*model.MailboxAccount {
	out := make([]*model.MailboxAccount, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type emailKey struct {
	accountID uint64
	folder    string
	uid       uint32
}

type fakeEmailRepo struct {
	mu     sync.Mutex
	nextID uint64
	recs   map[emailKey]*model.EmailRecord
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{recs: make(map[emailKey]*model.EmailRecord)}
}

func (r *fakeEmailRepo) ListUIDs(_ context.Context, accountID uint64, folder string) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var uids []uint32
	for k := range r.recs {
		if k.accountID == accountID && k.folder == folder {
			uids = append(uids, k.uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (r *fakeEmailRepo) Upsert(_ context.Context, rec *model.EmailRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := emailKey{rec.AccountID, rec.Folder, rec.UID}
	if existing, ok := r.recs[k]; ok {
		existing.Flags = rec.Flags
		existing.Subject = rec.Subject
		existing.Size = rec.Size
		existing.Deleted = false
		existing.SyncedAt = rec.SyncedAt
		rec.ID = existing.ID
		rec.OrderID = existing.OrderID
		return false, nil
	}
	r.nextID++
	rec.ID = r.nextID
	cp := *rec
	r.recs[k] = &cp
	return true, nil
}

func (r *fakeEmailRepo) MarkDeleted(_ context.Context, accountID uint64, folder string, uids []uint32) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, uid := range uids {
		if rec, ok := r.recs[emailKey{accountID, folder, uid}]; ok {
			rec.Deleted = true
			n++
		}
	}
	return n, nil
}

func (r *fakeEmailRepo) ListEligible(_ context.Context, accountID uint64, onlyUnlinked bool, limit int) ([]*model.EmailRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.EmailRecord
	for _, rec := range r.recs {
		if rec.AccountID != accountID || rec.Deleted {
			continue
		}
		if onlyUnlinked && rec.OrderID != nil {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEmailRepo) LinkOrder(_ context.Context, emailID, orderID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.ID == emailID {
			rec.OrderID = &orderID
			return nil
		}
	}
	return fmt.Errorf("email %d not found", emailID)
}

func (r *fakeEmailRepo) Count(_ context.Context, accountID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.recs {
		if rec.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (r *fakeEmailRepo) get(accountID uint64, folder string, uid uint32) *model.EmailRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[emailKey{accountID, folder, uid}]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

type fakeSyncLogRepo struct {
	mu   sync.Mutex
	logs []*model.SyncLog
}

func (r *fakeSyncLogRepo) Create(_ context.Context, log *model.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *fakeSyncLogRepo) ListByAccount(_ context.Context, accountID uint64, _ int) ([]*model.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SyncLog
	for _, l := range r.logs {
		if l.AccountID == accountID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeSyncLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.logs[:0]
	var n int64
	for _, l := range r.logs {
		if l.CreatedAt.Before(cutoff) {
			n++
		} else {
			kept = append(kept, l)
		}
	}
	r.logs = kept
	return n, nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	nextID uint64
	orders map[string]*model.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*model.Order)}
}

func (r *fakeOrderRepo) GetByNumber(_ context.Context, orderNumber string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) UpsertWithItems(_ context.Context, order *model.Order, items []model.OrderItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := false
	if existing, ok := r.orders[order.OrderNumber]; ok {
		order.ID = existing.ID
		order.CreatedAt = existing.CreatedAt
		order.Status = existing.Status
		order.TrackingNumber = existing.TrackingNumber
		order.DeliveredAt = existing.DeliveredAt
		if order.EstimatedArrival == "" {
			order.EstimatedArrival = existing.EstimatedArrival
		}
	} else {
		r.nextID++
		order.ID = r.nextID
		created = true
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	order.Items = items
	cp := *order
	r.orders[order.OrderNumber] = &cp
	return created, nil
}

func (r *fakeOrderRepo) UpdateStatusFields(_ context.Context, id uint64, upd repository.StatusFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID != id {
			continue
		}
		o.Status = upd.Status
		if upd.TrackingNumber != "" {
			o.TrackingNumber = upd.TrackingNumber
		}
		if upd.EstimatedArrival != "" {
			o.EstimatedArrival = upd.EstimatedArrival
		}
		if upd.DeliveredAt != nil {
			o.DeliveredAt = upd.DeliveredAt
		}
		return nil
	}
	return fmt.Errorf("order %d not found", id)
}

func (r *fakeOrderRepo) ListActive(_ context.Context, _ int) ([]*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		if !o.Status.Terminal() {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeOrderRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

func (r *fakeOrderRepo) get(orderNumber string) *model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// fakeTransport serves a fixed remote mailbox state from memory. Every Open
// is counted so tests can assert on connection reuse.
type fakeTransport struct {
	mu        sync.Mutex
	uids      map[string][]uint32
	envelopes map[uint32]*mail.Envelope
	bodies    map[uint32][]byte
	openErr   error
	listErr   error
	fetchErr  map[uint32]error
	opens     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		uids:      make(map[string][]uint32),
		envelopes: make(map[uint32]*mail.Envelope),
		bodies:    make(map[uint32][]byte),
		fetchErr:  make(map[uint32]error),
	}
}

func (t *fakeTransport) setMessage(folder string, uid uint32, env *mail.Envelope, body []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uids[folder] = append(t.uids[folder], uid)
	env.UID = uid
	t.envelopes[uid] = env
	t.bodies[uid] = body
}

func (t *fakeTransport) setUIDs(folder string, uids []uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uids[folder] = uids
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) Open(_ context.Context, _ *model.MailboxAccount, folder string) (mail.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	t.opens++
	return &fakeSession{t: t, folder: folder}, nil
}

type fakeSession struct {
	t      *fakeTransport
	folder string
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) ListUIDs(_ context.Context) ([]uint32, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.listErr != nil {
		return nil, s.t.listErr
	}
	return append([]uint32(nil), s.t.uids[s.folder]...), nil
}

func (s *fakeSession) FetchEnvelope(_ context.Context, uid uint32) (*mail.Envelope, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.fetchErr[uid]; err != nil {
		return nil, err
	}
	env, ok := s.t.envelopes[uid]
	if !ok {
		return nil, fmt.Errorf("%w: uid %d", mail.ErrConnection, uid)
	}
	cp := *env
	return &cp, nil
}

func (s *fakeSession) FetchBody(_ context.Context, uid uint32) ([]byte, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.fetchErr[uid]; err != nil {
		return nil, err
	}
	body, ok := s.t.bodies[uid]
	if !ok {
		return nil, fmt.Errorf("%w: uid %d", mail.ErrConnection, uid)
	}
	return body, nil
}
