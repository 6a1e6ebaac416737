package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"go.uber.org/zap"
)

const (
	// IncentiveReward is the flat number of points credited to a farmer on a
	// qualifying release.
	IncentiveReward uint64 = 100

	// IncentiveQualityThreshold is the minimum verified quality score that
	// earns IncentiveReward.
	IncentiveQualityThreshold = 60
)

// BatchStore is the persistence interface for the engine.
// *repository.MemoryStore, *repository.PostgresStore and
// *repository.BadgerStore satisfy it.
type BatchStore interface {
	Create(ctx context.Context, b *model.Batch) (uint64, error)
	Get(ctx context.Context, id uint64) (*model.Batch, error)
	Update(ctx context.Context, b *model.Batch) error
	AppendProvenance(ctx context.Context, id uint64, e model.ProvenanceEntry) (int, error)
	IncentiveBalance(ctx context.Context, p model.Principal) (uint64, error)
	// UpdateWithIncentive applies Update and adds delta to p's incentive
	// balance atomically, returning the new balance.
	UpdateWithIncentive(ctx context.Context, b *model.Batch, p model.Principal, delta int64) (uint64, error)
}

// OperationRecorder is an optional callback invoked once per engine
// operation with its name and result.
type OperationRecorder func(op string, err error)

// Engine is the batch lifecycle state machine. Operations are serialized by
// mu. A release or refund drops mu for its outbound transfer but keeps the
// batch gated until the transfer settles; see lockBatch.
type Engine struct {
	store    BatchStore
	payments Transferer
	emitter  Emitter
	onOp     OperationRecorder
	nowFn    func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[uint64]*settlement
}

// NewEngine creates an Engine. payments must not be nil.
func NewEngine(store BatchStore, payments Transferer, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		payments: payments,
		emitter:  NoopEmitter{},
		nowFn:    time.Now,
		logger:   logger,
		inflight: make(map[uint64]*settlement),
	}
}

// SetEmitter configures the event sink. nil restores the no-op emitter.
func (e *Engine) SetEmitter(em Emitter) {
	if em == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = em
}

// SetNowFunc overrides the clock used for createdAt and event timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetOperationRecorder configures the per-operation metrics callback.
func (e *Engine) SetOperationRecorder(fn OperationRecorder) {
	e.onOp = fn
}

func (e *Engine) now() time.Time { return e.nowFn().UTC() }

func (e *Engine) record(op string, err error) {
	if e.onOp != nil {
		e.onOp(op, err)
	}
}

func (e *Engine) emit(ctx context.Context, b *model.Batch, actor model.Principal, data model.EventPayload) {
	e.emitter.Emit(ctx, model.NewEvent(b.ID, actor, e.now(), data))
}

// CreateBatch registers a new batch owned by caller and returns its id.
func (e *Engine) CreateBatch(ctx context.Context, caller model.Principal, metadataCID string, price model.Amount) (id uint64, err error) {
	defer func() { e.record("create", err) }()

	if caller.IsZero() {
		return 0, fmt.Errorf("create batch: %w: missing caller", model.ErrUnauthorized)
	}
	if err := model.ValidateCID(metadataCID); err != nil {
		return 0, err
	}
	if price.IsZero() {
		return 0, fmt.Errorf("create batch: %w: price must be positive", model.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := &model.Batch{
		Farmer:      caller,
		MetadataCID: metadataCID,
		PriceWei:    price,
		State:       model.StateCreated,
		CreatedAt:   e.now(),
		Provenance:  []model.ProvenanceEntry{},
	}
	if _, err := e.store.Create(ctx, b); err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}

	e.logger.Info("batch created",
		zap.Uint64("batch_id", b.ID),
		zap.String("farmer", caller.String()),
		zap.String("price_wei", price.String()),
	)
	e.emit(ctx, b, caller, model.BatchCreated{Farmer: caller, MetadataCID: metadataCID, PriceWei: price})
	return b.ID, nil
}

// ListBatch offers the batch for sale at newPrice. Re-listing a listed
// batch only changes its price.
func (e *Engine) ListBatch(ctx context.Context, caller model.Principal, id uint64, newPrice model.Amount) (err error) {
	defer func() { e.record("list", err) }()

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsFarmer(caller) {
		return fmt.Errorf("list batch %d: %w: only the farmer may list", id, model.ErrUnauthorized)
	}
	if err := e.transition(b, model.StateListed); err != nil {
		return fmt.Errorf("list batch %d: %w", id, err)
	}
	if newPrice.IsZero() {
		return fmt.Errorf("list batch %d: %w: price must be positive", id, model.ErrInvalidAmount)
	}

	b.PriceWei = newPrice
	b.State = model.StateListed
	if err := e.store.Update(ctx, b); err != nil {
		return fmt.Errorf("list batch %d: %w", id, err)
	}

	e.logger.Info("batch listed", zap.Uint64("batch_id", id), zap.String("price_wei", newPrice.String()))
	e.emit(ctx, b, caller, model.BatchListed{PriceWei: newPrice})
	return nil
}

// UpdateQuality records the verifier's quality score and verification flag.
func (e *Engine) UpdateQuality(ctx context.Context, caller model.Principal, id uint64, score int, verified bool) (err error) {
	defer func() { e.record("update_quality", err) }()

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsFarmer(caller) {
		return fmt.Errorf("update quality of batch %d: %w: only the farmer may update quality", id, model.ErrUnauthorized)
	}
	switch b.State {
	case model.StateCreated, model.StateListed, model.StateEscrowFunded:
	default:
		return fmt.Errorf("update quality of batch %d: %w: state is %s", id, model.ErrInvalidState, b.State)
	}
	if score < 0 || score > model.MaxQualityScore {
		return fmt.Errorf("update quality of batch %d: %w: score %d not in [0,%d]", id, model.ErrInvalidRange, score, model.MaxQualityScore)
	}

	b.QualityScore = uint8(score)
	b.DataVerified = verified
	if err := e.store.Update(ctx, b); err != nil {
		return fmt.Errorf("update quality of batch %d: %w", id, err)
	}

	e.logger.Info("batch quality updated", zap.Uint64("batch_id", id), zap.Int("score", score), zap.Bool("verified", verified))
	e.emit(ctx, b, caller, model.QualityUpdated{QualityScore: b.QualityScore, DataVerified: verified})
	return nil
}

// UpdateMetadata replaces the batch's metadata CID.
func (e *Engine) UpdateMetadata(ctx context.Context, caller model.Principal, id uint64, metadataCID string) (err error) {
	defer func() { e.record("update_metadata", err) }()

	if err := model.ValidateCID(metadataCID); err != nil {
		return err
	}

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsFarmer(caller) {
		return fmt.Errorf("update metadata of batch %d: %w: only the farmer may update metadata", id, model.ErrUnauthorized)
	}
	if b.State.Terminal() {
		return fmt.Errorf("update metadata of batch %d: %w: state is %s", id, model.ErrInvalidState, b.State)
	}

	b.MetadataCID = metadataCID
	if err := e.store.Update(ctx, b); err != nil {
		return fmt.Errorf("update metadata of batch %d: %w", id, err)
	}

	e.logger.Info("batch metadata updated", zap.Uint64("batch_id", id), zap.String("metadata_cid", metadataCID))
	e.emit(ctx, b, caller, model.MetadataUpdated{MetadataCID: metadataCID})
	return nil
}

// AddProvenance appends a provenance note. Any principal may write; the
// author is recorded with the note so readers can filter by writer.
func (e *Engine) AddProvenance(ctx context.Context, caller model.Principal, id uint64, provenanceCID string) (err error) {
	defer func() { e.record("add_provenance", err) }()

	if caller.IsZero() {
		return fmt.Errorf("add provenance to batch %d: %w: missing caller", id, model.ErrUnauthorized)
	}
	if err := model.ValidateCID(provenanceCID); err != nil {
		return err
	}

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}

	entry := model.ProvenanceEntry{CID: provenanceCID, Author: caller, AddedAt: e.now()}
	idx, err := e.store.AppendProvenance(ctx, id, entry)
	if err != nil {
		return fmt.Errorf("add provenance to batch %d: %w", id, err)
	}

	e.logger.Info("provenance added", zap.Uint64("batch_id", id), zap.Int("index", idx), zap.String("author", caller.String()))
	e.emit(ctx, b, caller, model.ProvenanceAdded{CID: provenanceCID, Author: caller, Index: idx})
	return nil
}

// FundEscrow deposits amount into escrow and makes caller the buyer.
// amount must equal the listed price exactly.
func (e *Engine) FundEscrow(ctx context.Context, caller model.Principal, id uint64, amount model.Amount) (err error) {
	defer func() { e.record("fund_escrow", err) }()

	if caller.IsZero() {
		return fmt.Errorf("fund escrow of batch %d: %w: missing caller", id, model.ErrUnauthorized)
	}

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if b.Buyer != nil {
		return fmt.Errorf("fund escrow of batch %d: %w", id, model.ErrAlreadyHasBuyer)
	}
	if err := e.transition(b, model.StateEscrowFunded); err != nil {
		return fmt.Errorf("fund escrow of batch %d: %w", id, err)
	}
	if amount.IsZero() || !amount.Eq(b.PriceWei) {
		return fmt.Errorf("fund escrow of batch %d: %w: got %s, price is %s", id, model.ErrInvalidAmount, amount, b.PriceWei)
	}

	buyer := caller
	b.Buyer = &buyer
	b.EscrowAmountWei = amount
	b.State = model.StateEscrowFunded
	if err := e.store.Update(ctx, b); err != nil {
		return fmt.Errorf("fund escrow of batch %d: %w", id, err)
	}

	e.logger.Info("escrow funded",
		zap.Uint64("batch_id", id),
		zap.String("buyer", caller.String()),
		zap.String("amount_wei", amount.String()),
	)
	e.emit(ctx, b, caller, model.EscrowFunded{Buyer: caller, Amount: amount})
	return nil
}

// MarkDelivered records that the farmer has delivered the produce.
func (e *Engine) MarkDelivered(ctx context.Context, caller model.Principal, id uint64) (err error) {
	defer func() { e.record("mark_delivered", err) }()

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsFarmer(caller) {
		return fmt.Errorf("mark batch %d delivered: %w: only the farmer may mark delivery", id, model.ErrUnauthorized)
	}
	if err := e.transition(b, model.StateDelivered); err != nil {
		return fmt.Errorf("mark batch %d delivered: %w", id, err)
	}

	b.State = model.StateDelivered
	if err := e.store.Update(ctx, b); err != nil {
		return fmt.Errorf("mark batch %d delivered: %w", id, err)
	}

	e.logger.Info("batch delivered", zap.Uint64("batch_id", id))
	e.emit(ctx, b, caller, model.Delivered{})
	return nil
}

// ReleaseToFarmer pays the escrow out to the farmer. Only the buyer may
// release, and only after delivery. A qualifying batch (verified data,
// score >= IncentiveQualityThreshold) earns the farmer IncentiveReward points.
func (e *Engine) ReleaseToFarmer(ctx context.Context, caller model.Principal, id uint64) (err error) {
	defer func() { e.record("release", err) }()

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsBuyer(caller) {
		return fmt.Errorf("release batch %d: %w: only the buyer may release", id, model.ErrUnauthorized)
	}
	if err := e.transition(b, model.StateReleased); err != nil {
		return fmt.Errorf("release batch %d: %w", id, err)
	}

	var points uint64
	if b.DataVerified && b.QualityScore >= IncentiveQualityThreshold {
		points = IncentiveReward
	}

	payment := Payment{BatchID: id, Kind: PaymentRelease, To: b.Farmer, Amount: b.EscrowAmountWei}
	balance, err := e.settle(ctx, b, model.StateReleased, payment, points)
	if err != nil {
		return fmt.Errorf("release batch %d: %w", id, err)
	}

	e.logger.Info("escrow released",
		zap.Uint64("batch_id", id),
		zap.String("farmer", b.Farmer.String()),
		zap.String("amount_wei", payment.Amount.String()),
	)
	e.emit(ctx, b, caller, model.Released{Farmer: b.Farmer, Amount: payment.Amount})

	if points > 0 {
		e.logger.Info("incentive awarded",
			zap.Uint64("batch_id", id),
			zap.String("farmer", b.Farmer.String()),
			zap.Uint64("balance", balance),
		)
		e.emit(ctx, b, b.Farmer, model.IncentiveAwarded{Farmer: b.Farmer, Points: points, Balance: balance})
	}
	return nil
}

// RefundBuyer returns the escrow to the buyer. Either party may refund
// while the escrow is funded and delivery has not been marked.
func (e *Engine) RefundBuyer(ctx context.Context, caller model.Principal, id uint64) (err error) {
	defer func() { e.record("refund", err) }()

	if err := e.lockBatch(ctx, id); err != nil {
		return err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsBuyer(caller) && !b.IsFarmer(caller) {
		return fmt.Errorf("refund batch %d: %w: only the buyer or farmer may refund", id, model.ErrUnauthorized)
	}
	if err := e.transition(b, model.StateRefunded); err != nil {
		return fmt.Errorf("refund batch %d: %w", id, err)
	}

	payment := Payment{BatchID: id, Kind: PaymentRefund, To: *b.Buyer, Amount: b.EscrowAmountWei}
	if _, err := e.settle(ctx, b, model.StateRefunded, payment, 0); err != nil {
		return fmt.Errorf("refund batch %d: %w", id, err)
	}

	e.logger.Info("escrow refunded",
		zap.Uint64("batch_id", id),
		zap.String("buyer", payment.To.String()),
		zap.String("amount_wei", payment.Amount.String()),
	)
	e.emit(ctx, b, caller, model.Refunded{Buyer: payment.To, Amount: payment.Amount})
	return nil
}

// settlement is a release or refund whose outbound transfer is in flight.
type settlement struct {
	done     chan struct{}
	credited model.Principal // zero unless the settlement moves incentive points
}

type settlementKey struct{}

// withSettlement marks ctx as belonging to the transfer of batch id.
func withSettlement(ctx context.Context, id uint64) context.Context {
	ids, _ := ctx.Value(settlementKey{}).([]uint64)
	return context.WithValue(ctx, settlementKey{}, append(slices.Clip(ids), id))
}

func inSettlement(ctx context.Context, id uint64) bool {
	ids, _ := ctx.Value(settlementKey{}).([]uint64)
	return slices.Contains(ids, id)
}

// lockBatch acquires e.mu once batch id has no transfer in flight. Calls made
// from inside that transfer pass straight through and observe the committed
// terminal state. On error e.mu is not held.
func (e *Engine) lockBatch(ctx context.Context, id uint64) error {
	e.mu.Lock()
	for {
		s, busy := e.inflight[id]
		if !busy || inSettlement(ctx, id) {
			return nil
		}
		if err := e.await(ctx, s); err != nil {
			return fmt.Errorf("batch %d: %w", id, err)
		}
	}
}

// lockIncentive acquires e.mu once no in-flight settlement is crediting p.
func (e *Engine) lockIncentive(ctx context.Context, p model.Principal) error {
	e.mu.Lock()
	for {
		var pending *settlement
		for id, s := range e.inflight {
			if !s.credited.IsZero() && s.credited == p && !inSettlement(ctx, id) {
				pending = s
				break
			}
		}
		if pending == nil {
			return nil
		}
		if err := e.await(ctx, pending); err != nil {
			return fmt.Errorf("incentive balance of %s: %w", p, err)
		}
	}
}

// await releases e.mu until s settles, then reacquires it. On error e.mu is
// not held.
func (e *Engine) await(ctx context.Context, s *settlement) error {
	e.mu.Unlock()
	select {
	case <-s.done:
		e.mu.Lock()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for settlement: %w", ctx.Err())
	}
}

// settle commits b in state to with a zeroed escrow, together with points
// credited to the farmer, then performs the outbound transfer. It must be
// called with e.mu held and returns with e.mu held; mu is dropped only for
// the transfer, while the batch stays gated. A failed transfer restores the
// prior state, escrow and incentive balance.
func (e *Engine) settle(ctx context.Context, b *model.Batch, to model.State, p Payment, points uint64) (uint64, error) {
	prevState, prevEscrow := b.State, b.EscrowAmountWei
	b.State = to
	b.EscrowAmountWei = model.Amount{}
	balance, err := e.store.UpdateWithIncentive(ctx, b, b.Farmer, int64(points))
	if err != nil {
		b.State, b.EscrowAmountWei = prevState, prevEscrow
		return 0, err
	}

	s := &settlement{done: make(chan struct{})}
	if points > 0 {
		s.credited = b.Farmer
	}
	e.inflight[b.ID] = s
	e.mu.Unlock()

	transferErr := e.payments.Transfer(withSettlement(ctx, b.ID), p)

	e.mu.Lock()
	defer func() {
		delete(e.inflight, b.ID)
		close(s.done)
	}()
	if transferErr == nil {
		return balance, nil
	}

	e.logger.Error("outbound transfer failed, rolling back",
		zap.Uint64("batch_id", b.ID),
		zap.String("kind", string(p.Kind)),
		zap.String("to", p.To.String()),
		zap.Error(transferErr),
	)
	failed := fmt.Errorf("%w: %v", model.ErrTransferFailed, transferErr)

	// Reload so provenance appended during the transfer is kept; only the
	// fields this operation changed are restored.
	rctx := context.WithoutCancel(ctx)
	cur, err := e.store.Get(rctx, b.ID)
	if err != nil {
		return 0, errors.Join(failed, fmt.Errorf("rollback: %w", err))
	}
	cur.State = prevState
	cur.EscrowAmountWei = prevEscrow
	if _, err := e.store.UpdateWithIncentive(rctx, cur, b.Farmer, -int64(points)); err != nil {
		return 0, errors.Join(failed, fmt.Errorf("rollback: %w", err))
	}
	b.State, b.EscrowAmountWei = prevState, prevEscrow

	e.logger.Warn("batch rolled back after failed transfer",
		zap.Uint64("batch_id", b.ID),
		zap.String("state", string(prevState)),
	)
	return 0, failed
}

// transition returns ErrInvalidState unless b.State → to is a graph edge.
func (e *Engine) transition(b *model.Batch, to model.State) error {
	if !model.CanTransition(b.State, to) {
		return fmt.Errorf("%w: cannot move from %s to %s", model.ErrInvalidState, b.State, to)
	}
	return nil
}

// load fetches a batch, wrapping ErrNotFound with the id.
func (e *Engine) load(ctx context.Context, id uint64) (*model.Batch, error) {
	b, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("batch %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("load batch %d: %w", id, err)
	}
	return b, nil
}

// GetBatch returns a copy of the batch.
func (e *Engine) GetBatch(ctx context.Context, id uint64) (*model.Batch, error) {
	if err := e.lockBatch(ctx, id); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.load(ctx, id)
}

// GetProvenance returns the provenance entries of a batch in append order.
// A batch with no notes yields an empty, non-nil slice.
func (e *Engine) GetProvenance(ctx context.Context, id uint64) ([]model.ProvenanceEntry, error) {
	if err := e.lockBatch(ctx, id); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	b, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Provenance == nil {
		return []model.ProvenanceEntry{}, nil
	}
	return b.Provenance, nil
}

// IncentiveBalance returns the incentive points held by p.
func (e *Engine) IncentiveBalance(ctx context.Context, p model.Principal) (uint64, error) {
	if err := e.lockIncentive(ctx, p); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return e.store.IncentiveBalance(ctx, p)
}
