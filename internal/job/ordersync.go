package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mailops/internal/mail"
	"mailops/internal/model"
	"mailops/internal/order"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
	"mailops/pkg/logger"
)

// OrderExtractParams narrows an extraction run. skip_existing and
// auto_sync_only default to true when absent; `{"skip_existing": false}`
// re-parses emails already linked to an order.
type OrderExtractParams struct {
	AccountID    uint64 `json:"account_id"`
	Limit        int    `json:"limit"`
	SkipExisting bool   `json:"skip_existing"`
	AutoSyncOnly bool   `json:"auto_sync_only"`
}

// OrderExtractJob fetches bodies for eligible emails, parses order details
// out of them and upserts orders by their natural key. Messages that do not
// match the vendor template are counted and skipped, never fatal.
type OrderExtractJob struct {
	accounts  repository.AccountInterface
	emails    repository.EmailInterface
	orders    repository.OrderInterface
	transport mail.Transport
}

func NewOrderExtractJob(
	accounts repository.AccountInterface,
	emails repository.EmailInterface,
	orders repository.OrderInterface,
	transport mail.Transport,
) *OrderExtractJob {
	return &OrderExtractJob{
		accounts:  accounts,
		emails:    emails,
		orders:    orders,
		transport: transport,
	}
}

func (j *OrderExtractJob) Name() string { return "order_sync" }

func (j *OrderExtractJob) Run(ctx context.Context, params []byte) (*scheduler.Result, error) {
	p := OrderExtractParams{SkipExisting: true, AutoSyncOnly: true}
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	accounts, err := j.resolveAccounts(ctx, p)
	if err != nil {
		return nil, err
	}

	var (
		processed  int
		created    int
		updated    int
		parseSkips int
		failures   []string
	)
	for _, account := range accounts {
		recs, err := j.emails.ListEligible(ctx, account.ID, p.SkipExisting, p.Limit)
		if err != nil {
			return nil, err
		}

		// One connection per folder for the whole account pass.
		sessions := make(map[string]mail.Session)
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				closeSessions(sessions)
				return nil, err
			}
			sess, ok := sessions[rec.Folder]
			if !ok {
				sess, err = j.transport.Open(ctx, account, rec.Folder)
				if err != nil {
					failures = append(failures, fmt.Sprintf("folder %s: %v", rec.Folder, err))
					continue
				}
				sessions[rec.Folder] = sess
			}
			processed++
			wasNew, err := j.extractOne(ctx, sess, account, rec)
			switch {
			case errors.Is(err, order.ErrParse):
				parseSkips++
			case err != nil:
				failures = append(failures, fmt.Sprintf("email %d: %v", rec.ID, err))
			case wasNew:
				created++
			default:
				updated++
			}
		}
		closeSessions(sessions)
	}

	res := &scheduler.Result{
		Summary: map[string]any{
			"processed":      processed,
			"orders_created": created,
			"orders_updated": updated,
			"parse_skipped":  parseSkips,
			"failed":         len(failures),
		},
	}
	if len(failures) > 0 {
		res.ExitCode = 1
		res.ErrorOutput = strings.Join(failures, "\n")
	}
	return res, nil
}

func (j *OrderExtractJob) resolveAccounts(ctx context.Context, p OrderExtractParams) ([]*model.MailboxAccount, error) {
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

func closeSessions(sessions map[string]mail.Session) {
	for _, s := range sessions {
		s.Close()
	}
}

func (j *OrderExtractJob) extractOne(ctx context.Context, sess mail.Session, account *model.MailboxAccount, rec *model.EmailRecord) (bool, error) {
	body, err := sess.FetchBody(ctx, rec.UID)
	if err != nil {
		return false, err
	}

	parsed, err := order.ParseEmail(body)
	if err != nil {
		logger.Debug("order template not matched",
			zap.Uint64("email_id", rec.ID), zap.String("subject", rec.Subject))
		return false, err
	}

	o := &model.Order{
		OrderNumber:      parsed.OrderNumber,
		OrderDate:        parsed.OrderDate,
		Status:           model.OrderPending,
		Subtotal:         parsed.Subtotal,
		ShippingFee:      parsed.ShippingFee,
		Tax:              parsed.Tax,
		Total:            parsed.Total,
		ShippingName:     parsed.ShippingName,
		ShippingAddress:  parsed.ShippingAddress,
		ShippingCity:     parsed.ShippingCity,
		ShippingState:    parsed.ShippingState,
		ShippingZipCode:  parsed.ShippingZipCode,
		ShippingMethod:   parsed.ShippingMethod,
		BillingName:      parsed.BillingName,
		BillingAddress:   parsed.BillingAddress,
		BillingCity:      parsed.BillingCity,
		BillingState:     parsed.BillingState,
		BillingZipCode:   parsed.BillingZipCode,
		EstimatedArrival: parsed.EstimatedArrival,
		AccountID:        &account.ID,
		EmailID:          &rec.ID,
	}
	items := make([]model.OrderItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, model.OrderItem{
			Name:      it.Name,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	wasNew, err := j.orders.UpsertWithItems(ctx, o, items)
	if err != nil {
		return false, err
	}
	if err := j.emails.LinkOrder(ctx, rec.ID, o.ID); err != nil {
		return wasNew, err
	}

	logger.Info("order extracted",
		zap.String("order_number", o.OrderNumber),
		zap.Bool("created", wasNew),
		zap.Int("items", len(items)),
	)
	return wasNew, nil
}
