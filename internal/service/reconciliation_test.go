package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dagdev/vpnbill/internal/api/dto"
	"github.com/dagdev/vpnbill/internal/domain/invoice"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/provisioning"
	"github.com/dagdev/vpnbill/internal/testutil"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/stretchr/testify/suite"
)

type ReconciliationServiceSuite struct {
	serviceSuite
}

func TestReconciliationService(t *testing.T) {
	suite.Run(t, new(ReconciliationServiceSuite))
}

func (s *ReconciliationServiceSuite) alertsContaining(fragment string) int {
	n := 0
	for _, m := range s.GetNotifier().Messages() {
		if strings.Contains(m, fragment) {
			n++
		}
	}
	return n
}

func (s *ReconciliationServiceSuite) TestRetryAfterWindowCompletes() {
	ctx := s.GetContext()
	s.seed("inv_1", 42, "m1", types.InvoiceStatusPending, 0)
	s.GetProvisioner().FailNext(1, testutil.Unavailable("/api/user"))

	resp, err := s.payments.HandlePaymentConfirmed(ctx, dto.PaymentConfirmationRequest{
		Reference:   "inv_1",
		PayerID:     42,
		TotalAmount: 19900,
		Currency:    "RUB",
	})
	s.Require().NoError(err)
	s.Equal(types.IntakeOutcomeDelayed, resp.Outcome)

	parked := s.get("inv_1")
	s.Equal(types.InvoiceStatusPaidPending, parked.Status)
	s.Equal(1, parked.Attempts)
	s.NotEmpty(parked.Error())

	// inside the window nothing happens
	result, err := s.reconciliation.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeSkipped))
	s.Equal(parked, s.get("inv_1"))
	s.Equal(1, s.GetProvisioner().Calls("CreateUser"))

	s.Advance(30 * time.Second)
	result, err = s.reconciliation.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeCompleted))

	done := s.get("inv_1")
	s.Equal(types.InvoiceStatusCompleted, done.Status)
	s.Equal(1, done.Attempts)
	s.Equal("https://panel.example/sub/tg_42", done.Link())
}

func (s *ReconciliationServiceSuite) TestExhaustionFailsAndAlertsOnce() {
	ctx := s.GetContext()
	s.seed("inv_2", 43, "m1", types.InvoiceStatusPending, 0)
	s.GetProvisioner().FailNext(100, testutil.Unavailable("/api/user"))

	_, err := s.payments.HandlePaymentConfirmed(ctx, dto.PaymentConfirmationRequest{
		Reference:   "inv_2",
		PayerID:     43,
		TotalAmount: 19900,
		Currency:    "RUB",
	})
	s.Require().NoError(err)

	for i := 0; i < 4; i++ {
		s.Advance(15 * time.Minute)
		result, err := s.reconciliation.Tick(ctx)
		s.Require().NoError(err)
		s.Equal(1, result.Count(types.ReconcileOutcomeRetried))
	}
	s.Equal(5, s.get("inv_2").Attempts)

	s.Advance(15 * time.Minute)
	result, err := s.reconciliation.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeExhausted))

	failed := s.get("inv_2")
	s.Equal(types.InvoiceStatusFailed, failed.Status)
	s.Equal(5, failed.Attempts)
	s.Equal(1, s.alertsContaining("maximum number of attempts"))

	// terminal: no more provisioning, no more alerts
	s.Advance(time.Hour)
	result, err = s.reconciliation.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(0, result.Scanned)
	s.Equal(5, s.GetProvisioner().Calls("CreateUser"))
	s.Equal(1, s.alertsContaining("maximum number of attempts"))
}

func (s *ReconciliationServiceSuite) TestExhaustedInvoiceIsNotProvisioned() {
	s.seed("inv_x", 44, "m1", types.InvoiceStatusPaidPending, 5)

	result, err := s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeExhausted))
	s.Equal(0, s.GetProvisioner().Calls("CreateUser"))

	inv := s.get("inv_x")
	s.Equal(types.InvoiceStatusFailed, inv.Status)
	s.Equal("provisioning unavailable", inv.Error())
	s.Len(s.GetNotifier().Messages(), 1)
}

func (s *ReconciliationServiceSuite) TestBackoffWindowMakesNoMutation() {
	seeded := s.seed("inv_w", 45, "m1", types.InvoiceStatusPaidPending, 2)

	s.Advance(59 * time.Second)
	result, err := s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeSkipped))

	after := s.get("inv_w")
	s.Equal(seeded.UpdatedAt, after.UpdatedAt)
	s.Equal(2, after.Attempts)
	s.Equal(types.InvoiceStatusPaidPending, after.Status)
	s.Equal(0, s.GetProvisioner().Calls("CreateUser"))

	s.Advance(time.Second)
	result, err = s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeCompleted))
}

func (s *ReconciliationServiceSuite) TestPaidInvoiceWaitsForInFlightGrace() {
	s.seed("inv_p", 46, "m1", types.InvoiceStatusPaid, 0)

	s.Advance(time.Minute)
	result, err := s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeSkipped))

	s.Advance(time.Minute)
	result, err = s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeCompleted))
}

func (s *ReconciliationServiceSuite) TestUnknownTariffFailsInvoice() {
	s.seed("inv_u", 47, "m99", types.InvoiceStatusPaidPending, 1)
	s.Advance(time.Minute)

	result, err := s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeNotFound))

	s.Equal(types.InvoiceStatusFailed, s.get("inv_u").Status)
	s.Equal(1, s.alertsContaining("invoice not found"))
}

func (s *ReconciliationServiceSuite) TestOrderAndIndependentOutcomes() {
	s.seed("inv_a", 50, "m1", types.InvoiceStatusPaidPending, 1)
	s.Advance(time.Second)
	s.seed("inv_b", 51, "m99", types.InvoiceStatusPaidPending, 1)
	s.Advance(time.Second)
	s.seed("inv_c", 52, "m3", types.InvoiceStatusPaidPending, 5)
	s.Advance(10 * time.Minute)

	result, err := s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Require().Len(result.Outcomes, 3)
	s.Equal("inv_a", result.Outcomes[0].InvoiceID)
	s.Equal(types.ReconcileOutcomeCompleted, result.Outcomes[0].Outcome)
	s.Equal(types.ReconcileOutcomeNotFound, result.Outcomes[1].Outcome)
	s.Equal(types.ReconcileOutcomeExhausted, result.Outcomes[2].Outcome)
}

type panickingProvisioner struct {
	*testutil.FakeProvisioner
	username string
}

func (p *panickingProvisioner) CreateUser(ctx context.Context, params provisioning.AccessParams) (*provisioning.User, error) {
	if params.Username == p.username {
		panic("decoder exploded")
	}
	return p.FakeProvisioner.CreateUser(ctx, params)
}

func (s *ReconciliationServiceSuite) TestPanicIsFoldedIntoResult() {
	s.params.Provisioner = &panickingProvisioner{FakeProvisioner: s.GetProvisioner(), username: UsernameFor(60)}
	s.rebuild()

	s.seed("inv_panic", 60, "m1", types.InvoiceStatusPaidPending, 1)
	s.Advance(time.Second)
	s.seed("inv_ok", 61, "m1", types.InvoiceStatusPaidPending, 1)
	s.Advance(10 * time.Minute)

	result, err := s.reconciliation.Tick(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Count(types.ReconcileOutcomeErrored))
	s.Equal(1, result.Count(types.ReconcileOutcomeCompleted))
	s.Equal(types.InvoiceStatusCompleted, s.get("inv_ok").Status)
}

type listFailingRepo struct {
	*testutil.InMemoryInvoiceStore
}

func (f listFailingRepo) ListPaidPending(ctx context.Context) ([]*invoice.Invoice, error) {
	return nil, errors.New("connection reset")
}

func (s *ReconciliationServiceSuite) TestTickErrorWhenListingFails() {
	s.params.InvoiceRepo = listFailingRepo{InMemoryInvoiceStore: s.store()}
	s.rebuild()

	_, err := s.reconciliation.Tick(s.GetContext())
	s.Require().Error(err)
	s.True(errors.Is(err, ierr.ErrSchedulerTick))

	var tickErr *TickError
	s.True(errors.As(err, &tickErr))
}

func (s *ReconciliationServiceSuite) TestManualRetryBypassesWindow() {
	s.seed("inv_m", 70, "m1", types.InvoiceStatusPaidPending, 3)

	out, err := s.reconciliation.RetryInvoice(s.GetContext(), "inv_m")
	s.Require().NoError(err)
	s.Equal(types.ReconcileOutcomeCompleted, out.Outcome)
	s.Equal("https://panel.example/sub/tg_70", out.Link)

	again, err := s.reconciliation.RetryInvoice(s.GetContext(), "inv_m")
	s.Require().NoError(err)
	s.Equal(types.ReconcileOutcomeCompleted, again.Outcome)
	s.Equal(1, s.GetProvisioner().Calls("CreateUser"))
}

func (s *ReconciliationServiceSuite) TestManualRetryHonoursStateMachine() {
	s.seed("inv_f", 71, "m1", types.InvoiceStatusFailed, 5)
	s.seed("inv_n", 72, "m1", types.InvoiceStatusPending, 0)
	s.seed("inv_e", 73, "m1", types.InvoiceStatusPaidPending, 5)

	_, err := s.reconciliation.RetryInvoice(s.GetContext(), "inv_f")
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.reconciliation.RetryInvoice(s.GetContext(), "inv_n")
	s.True(ierr.IsInvalidOperation(err))

	out, err := s.reconciliation.RetryInvoice(s.GetContext(), "inv_e")
	s.Require().NoError(err)
	s.Equal(types.ReconcileOutcomeExhausted, out.Outcome)
	s.Equal(0, s.GetProvisioner().Calls("CreateUser"))

	_, err = s.reconciliation.RetryInvoice(s.GetContext(), "inv_missing")
	s.True(ierr.IsNotFound(err))
}
