package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mailops/internal/clock"
	"mailops/internal/mail"
	"mailops/internal/model"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
	"mailops/pkg/logger"
)

// MailboxSyncParams narrows a sync run. Absent keys mean "all auto-sync
// accounts, account-default folder and batch size, oldest UIDs first".
type MailboxSyncParams struct {
	AccountID     uint64 `json:"account_id"`
	Folder        string `json:"folder"`
	BatchSize     int    `json:"batch_size"`
	AutoSyncOnly  bool   `json:"auto_sync_only"`
	NewestFirst   bool   `json:"newest_first"`
	DeleteMissing bool   `json:"delete_missing"`
}

// MailboxSyncJob diffs remote UIDs against stored ones per account and pulls
// only the difference. One sync log row is written per account pass.
type MailboxSyncJob struct {
	accounts  repository.AccountInterface
	emails    repository.EmailInterface
	syncLogs  repository.SyncLogInterface
	transport mail.Transport
	clk       clock.Clock
}

func NewMailboxSyncJob(
	accounts repository.AccountInterface,
	emails repository.EmailInterface,
	syncLogs repository.SyncLogInterface,
	transport mail.Transport,
	clk clock.Clock,
) *MailboxSyncJob {
	return &MailboxSyncJob{
		accounts:  accounts,
		emails:    emails,
		syncLogs:  syncLogs,
		transport: transport,
		clk:       clk,
	}
}

func (j *MailboxSyncJob) Name() string { return "mailbox_sync" }

func (j *MailboxSyncJob) Run(ctx context.Context, params []byte) (*scheduler.Result, error) {
	p := MailboxSyncParams{AutoSyncOnly: true}
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	accounts, err := j.resolveAccounts(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return &scheduler.Result{Output: "no accounts to sync"}, nil
	}

	var (
		failed   []string
		totalNew int
		totalUpd int
		totalDel int
		exitCode int
	)
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats, err := j.syncAccount(ctx, account, p)
		if err != nil {
			logger.Error("account sync failed",
				zap.String("account", account.Email), zap.Error(err))
			failed = append(failed, fmt.Sprintf("%s: %v", account.Email, err))
			continue
		}
		totalNew += stats.NewEmails
		totalUpd += stats.UpdatedEmails
		totalDel += stats.DeletedEmails
	}

	summary := map[string]any{
		"accounts":       len(accounts),
		"failed":         len(failed),
		"new_emails":     totalNew,
		"updated_emails": totalUpd,
		"deleted_emails": totalDel,
	}
	res := &scheduler.Result{Summary: summary}
	if len(failed) > 0 {
		exitCode = 1
		res.ErrorOutput = strings.Join(failed, "\n")
	}
	res.ExitCode = exitCode
	return res, nil
}

func (j *MailboxSyncJob) resolveAccounts(ctx context.Context, p MailboxSyncParams) ([]*model.MailboxAccount, error) {
	if p.AccountID != 0 {
		account, err := j.accounts.GetByID(ctx, p.AccountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, fmt.Errorf("mailbox account %d not found", p.AccountID)
		}
		return []*model.MailboxAccount{account}, nil
	}
	if p.AutoSyncOnly {
		return j.accounts.ListAutoSync(ctx)
	}
	return j.accounts.List(ctx)
}

func (j *MailboxSyncJob) syncAccount(ctx context.Context, account *model.MailboxAccount, p MailboxSyncParams) (*model.SyncLog, error) {
	folder := p.Folder
	if folder == "" {
		folder = account.Folder
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = account.BatchSize
	}
	if batch <= 0 {
		batch = 50
	}

	started := j.clk.Now()
	log := &model.SyncLog{
		AccountID: account.ID,
		Folder:    folder,
		StartedAt: started,
		Status:    model.SyncSuccess,
	}
	finish := func() {
		log.FinishedAt = j.clk.Now()
		log.DurationMS = log.FinishedAt.Sub(started).Milliseconds()
		if err := j.syncLogs.Create(ctx, log); err != nil {
			logger.Error("failed to write sync log",
				zap.Uint64("account_id", account.ID), zap.Error(err))
		}
	}

	// One connection serves the whole pass: the UID listing and every fetch.
	sess, err := j.transport.Open(ctx, account, folder)
	if err != nil {
		log.Status = model.SyncFailed
		log.ErrorMessage = err.Error()
		finish()
		return nil, err
	}
	defer sess.Close()

	remote, err := sess.ListUIDs(ctx)
	if err != nil {
		log.Status = model.SyncFailed
		log.ErrorMessage = err.Error()
		finish()
		return nil, err
	}
	local, err := j.emails.ListUIDs(ctx, account.ID, folder)
	if err != nil {
		log.Status = model.SyncFailed
		log.ErrorMessage = err.Error()
		finish()
		return nil, err
	}

	newUIDs, missing := diffUIDs(remote, local)
	log.TotalEmails = len(remote)

	// Fetch order is a policy choice: higher UIDs are newer, so newest_first
	// walks the slice descending. Matters when the batch cuts the list short.
	sort.Slice(newUIDs, func(a, b int) bool {
		if p.NewestFirst {
			return newUIDs[a] > newUIDs[b]
		}
		return newUIDs[a] < newUIDs[b]
	})

	var fetchErrs []string
	for i, uid := range newUIDs {
		if err := ctx.Err(); err != nil {
			log.Status = model.SyncPartial
			log.ErrorMessage = err.Error()
			finish()
			return nil, err
		}
		if i >= batch {
			// Remainder is picked up by the next run; the diff converges.
			break
		}
		created, err := j.storeMessage(ctx, sess, account, folder, uid)
		if err != nil {
			fetchErrs = append(fetchErrs, fmt.Sprintf("uid %d: %v", uid, err))
			continue
		}
		if created {
			log.NewEmails++
		} else {
			log.UpdatedEmails++
		}
	}

	if p.DeleteMissing && len(missing) > 0 {
		n, err := j.emails.MarkDeleted(ctx, account.ID, folder, missing)
		if err != nil {
			fetchErrs = append(fetchErrs, fmt.Sprintf("mark deleted: %v", err))
		} else {
			log.DeletedEmails = int(n)
		}
	}

	if len(fetchErrs) > 0 {
		log.Status = model.SyncPartial
		log.ErrorMessage = strings.Join(fetchErrs, "; ")
	}
	finish()

	if err := j.accounts.UpdateLastSync(ctx, account.ID, j.clk.Now()); err != nil {
		logger.Warn("failed to update last sync time",
			zap.Uint64("account_id", account.ID), zap.Error(err))
	}

	logger.Info("mailbox synced",
		zap.String("account", account.Email),
		zap.String("folder", folder),
		zap.Int("new", log.NewEmails),
		zap.Int("updated", log.UpdatedEmails),
		zap.Int("deleted", log.DeletedEmails),
	)
	return log, nil
}

func (j *MailboxSyncJob) storeMessage(ctx context.Context, sess mail.Session, account *model.MailboxAccount, folder string, uid uint32) (bool, error) {
	env, err := sess.FetchEnvelope(ctx, uid)
	if err != nil {
		return false, err
	}
	rec := &model.EmailRecord{
		AccountID:       account.ID,
		Folder:          folder,
		UID:             env.UID,
		MessageID:       env.MessageID,
		Subject:         env.Subject,
		FromEmail:       env.FromEmail,
		FromName:        env.FromName,
		ToEmails:        strings.Join(env.To, ","),
		CcEmails:        strings.Join(env.Cc, ","),
		Date:            env.Date,
		Size:            env.Size,
		Flags:           joinJSON(env.Flags),
		HasAttachments:  len(env.AttachmentNames) > 0,
		AttachmentCount: len(env.AttachmentNames),
		AttachmentNames: joinJSON(env.AttachmentNames),
		SyncedAt:        j.clk.Now(),
	}
	return j.emails.Upsert(ctx, rec)
}

// diffUIDs splits the remote and local UID sets into UIDs to fetch and UIDs
// gone from the server.
func diffUIDs(remote, local []uint32) (newUIDs, missing []uint32) {
	localSet := make(map[uint32]struct{}, len(local))
	for _, uid := range local {
		localSet[uid] = struct{}{}
	}
	remoteSet := make(map[uint32]struct{}, len(remote))
	for _, uid := range remote {
		remoteSet[uid] = struct{}{}
		if _, ok := localSet[uid]; !ok {
			newUIDs = append(newUIDs, uid)
		}
	}
	for _, uid := range local {
		if _, ok := remoteSet[uid]; !ok {
			missing = append(missing, uid)
		}
	}
	return newUIDs, missing
}

func joinJSON(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
