package types

// IntakeOutcome is what a payment confirmation resulted in
type IntakeOutcome string

const (
	// IntakeOutcomeDelivered means access was provisioned and the link sent
	IntakeOutcomeDelivered IntakeOutcome = "delivered"
	// IntakeOutcomeDelayed means the payment was recorded and provisioning handed to reconciliation
	IntakeOutcomeDelayed IntakeOutcome = "delayed"
	// IntakeOutcomeDuplicate is a replayed confirmation with no side effects
	IntakeOutcomeDuplicate IntakeOutcome = "duplicate"
	// IntakeOutcomeUnknownTariff means the payment reference matched no invoice or tariff
	IntakeOutcomeUnknownTariff IntakeOutcome = "unknown_tariff"
)

// ReconcileOutcome is the result of one reconciliation step for one invoice
type ReconcileOutcome string

const (
	ReconcileOutcomeCompleted ReconcileOutcome = "completed"
	ReconcileOutcomeRetried   ReconcileOutcome = "retried"
	ReconcileOutcomeSkipped   ReconcileOutcome = "skipped"
	ReconcileOutcomeExhausted ReconcileOutcome = "exhausted"
	ReconcileOutcomeNotFound  ReconcileOutcome = "not_found"
	ReconcileOutcomeErrored   ReconcileOutcome = "errored"
)

// Prefix for invoices created from a confirmation that only names a tariff
const ChargeInvoicePrefix = "chg"
