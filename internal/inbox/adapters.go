package inbox

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"workinbox/internal/config"
	"workinbox/internal/domain"
)

// Adapter maps the raw collection of one source domain into work items.
type Adapter struct {
	Domain string
	Map    func(s Settings, records []domain.Record) []domain.WorkItem
}

// DefaultAdapters run in this order; among duplicates the earliest wins.
var DefaultAdapters = []Adapter{
	{Domain: domain.DomainPurchaseOrders, Map: PurchaseOrders},
	{Domain: domain.DomainInvoices, Map: Invoices},
	{Domain: domain.DomainAmendments, Map: Amendments},
	{Domain: domain.DomainContracts, Map: Contracts},
}

// Settings carries the thresholds and clock the adapters evaluate against.
type Settings struct {
	Now                        time.Time
	InvoiceHighThreshold       float64
	AmendmentHighThreshold     float64
	AmendmentCriticalThreshold float64
	ContractWindowDays         int
	InvoiceAwaiting            StatusSet
	AmendmentAwaiting          StatusSet
}

var (
	invoiceAwaitingStatuses = []string{
		"received", "pending", "awaiting payment", "awaiting validation", "to validate",
		"reçue", "en attente", "à valider", "à payer",
	}
	amendmentAwaitingStatuses = []string{
		"proposed", "pending", "awaiting arbitration", "submitted",
		"proposé", "en attente", "soumis",
	}
)

// SettingsFromConfig resolves adapter settings once per aggregation.
func SettingsFromConfig(cfg *config.Config, now time.Time) Settings {
	if cfg == nil {
		cfg = config.Default()
	}
	return Settings{
		Now:                        now,
		InvoiceHighThreshold:       cfg.Thresholds.InvoiceHigh,
		AmendmentHighThreshold:     cfg.Thresholds.AmendmentHigh,
		AmendmentCriticalThreshold: cfg.Thresholds.AmendmentCritical,
		ContractWindowDays:         cfg.Windows.ContractSignatureDays,
		InvoiceAwaiting:            NewStatusSet(append(append([]string{}, invoiceAwaitingStatuses...), cfg.Statuses.InvoiceAwaiting...)...),
		AmendmentAwaiting:          NewStatusSet(append(append([]string{}, amendmentAwaitingStatuses...), cfg.Statuses.AmendmentAwaiting...)...),
	}
}

var (
	poIDKeys      = []string{"id", "_id", "uid", "poId", "purchaseOrderId", "purchase_order_id"}
	poRefKeys     = []string{"reference", "number", "ref"}
	poAmountKeys  = []string{"amount", "totalAmount", "total_amount", "montant"}
	poExpiryKeys  = []string{"daysToExpiry", "days_to_expiry", "expiresInDays", "expires_in_days"}
	supplierKeys  = []string{"supplier", "vendor", "partner", "fournisseur"}
	invIDKeys     = []string{"id", "_id", "uid", "invoiceId", "invoice_id"}
	invRefKeys    = []string{"number", "reference", "invoiceNumber", "invoice_number"}
	invAmountKeys = []string{"amount", "totalAmount", "total_amount", "montant", "amountTTC"}
	invLateKeys   = []string{"daysLate", "days_late", "retard"}
	invDueKeys    = []string{"daysToDue", "days_to_due", "dueInDays"}
	invPOKeys     = []string{"purchaseOrderId", "purchase_order_id", "poId"}
	amdIDKeys     = []string{"id", "_id", "uid", "amendmentId", "amendment_id"}
	amdRefKeys    = []string{"reference", "number", "title"}
	amdDeltaKeys  = []string{"costDelta", "cost_delta", "amountDelta", "amount_delta", "delta"}
	amdDueKeys    = []string{"daysToDue", "days_to_due", "daysToDecision"}
	amdPartner    = []string{"contractor", "partner", "supplier"}
	contractKeys  = []string{"contractId", "contract_id"}
	ctrIDKeys     = []string{"id", "_id", "uid", "contractId", "contract_id"}
	ctrRefKeys    = []string{"reference", "number", "title"}
	ctrAmountKeys = []string{"amount", "value", "montant"}
	ctrDaysKeys   = []string{"daysToSignature", "days_to_signature", "signatureInDays"}
	ctrDateKeys   = []string{"signatureDeadline", "signature_deadline"}
	ctrSignedKeys = []string{"signed", "isSigned", "is_signed"}
	ctrPartner    = []string{"partner", "supplier", "counterparty"}
	signedStatus  = NewStatusSet("signed", "signé")
)

// PurchaseOrders surfaces purchase orders with no governance decision.
func PurchaseOrders(s Settings, records []domain.Record) []domain.WorkItem {
	var out []domain.WorkItem
	for _, rec := range records {
		f := fields{rec: rec}
		id := f.str(poIDKeys...)
		if id == "" || f.decided() {
			continue
		}
		ref := orDefault(f.str(poRefKeys...), id)
		amount := math.Abs(f.amount(poAmountKeys...))
		days := f.days(poExpiryKeys...)
		partner := f.str(supplierKeys...)

		evidence := []string{"No governance decision recorded"}
		if amount > 0 {
			evidence = append(evidence, "Amount "+formatAmount(amount))
		}
		if days != nil {
			evidence = append(evidence, countdown("Expires", *days))
		}
		if partner != "" {
			evidence = append(evidence, "Supplier: "+partner)
		}
		out = append(out, domain.WorkItem{
			UniqueKey:      uniqueKey(domain.CategoryPurchaseOrder, id),
			SourceID:       id,
			Category:       domain.CategoryPurchaseOrder,
			Title:          "Approve purchase order " + ref,
			ProjectRef:     f.str(projectKeys...),
			PartnerRef:     partner,
			OwnerOrg:       f.str(ownerKeys...),
			MonetaryImpact: amount,
			DaysToDue:      days,
			RiskLevel:      domain.RiskMedium,
			Evidence:       evidence,
			RecommendedActions: []domain.Action{
				{Kind: domain.ActionOpenModule, Label: "Open purchase order"},
				{Kind: domain.ActionValidate, Label: "Approve"},
				{Kind: domain.ActionReject, Label: "Reject", RequiresReason: true},
				{Kind: domain.ActionSendForReview, Label: "Send for review"},
			},
			CreatedAt: f.createdAt(s.Now),
		})
	}
	return out
}

// Invoices surfaces undecided invoices whose status awaits action.
func Invoices(s Settings, records []domain.Record) []domain.WorkItem {
	var out []domain.WorkItem
	for _, rec := range records {
		f := fields{rec: rec}
		id := f.str(invIDKeys...)
		if id == "" || f.decided() {
			continue
		}
		status := f.str(statusKeys...)
		if !s.InvoiceAwaiting.Contains(status) {
			continue
		}
		ref := orDefault(f.str(invRefKeys...), id)
		amount := math.Abs(f.amount(invAmountKeys...))
		partner := f.str(supplierKeys...)

		var days *int
		if late := f.days(invLateKeys...); late != nil {
			overdue := -absInt(*late)
			days = &overdue
		} else {
			days = f.days(invDueKeys...)
		}

		risk := domain.RiskMedium
		evidence := []string{"Status: " + status}
		if amount > 0 {
			evidence = append(evidence, "Amount "+formatAmount(amount))
		}
		if amount > s.InvoiceHighThreshold {
			risk = domain.RiskHigh
			evidence = append(evidence, "Amount above "+formatAmount(s.InvoiceHighThreshold))
		}
		if days != nil {
			evidence = append(evidence, countdown("Payment due", *days))
		}
		if partner != "" {
			evidence = append(evidence, "Supplier: "+partner)
		}
		var links []domain.Link
		if po := f.str(invPOKeys...); po != "" {
			links = append(links, domain.Link{Label: "Purchase order " + po, Reference: "purchase-orders/" + po})
		}
		out = append(out, domain.WorkItem{
			UniqueKey:      uniqueKey(domain.CategoryInvoice, id),
			SourceID:       id,
			Category:       domain.CategoryInvoice,
			Title:          "Decide payment for invoice " + ref,
			ProjectRef:     f.str(projectKeys...),
			PartnerRef:     partner,
			OwnerOrg:       f.str(ownerKeys...),
			MonetaryImpact: amount,
			DaysToDue:      days,
			RiskLevel:      risk,
			Evidence:       evidence,
			RecommendedActions: []domain.Action{
				{Kind: domain.ActionOpenModule, Label: "Open invoice"},
				{Kind: domain.ActionValidate, Label: "Approve payment"},
				{Kind: domain.ActionReject, Label: "Reject", RequiresReason: true},
				{Kind: domain.ActionSendForReview, Label: "Send for review"},
			},
			RelatedLinks: links,
			CreatedAt:    f.createdAt(s.Now),
		})
	}
	return out
}

// Amendments surfaces proposed amendments awaiting arbitration. Cost
// reductions weigh as much as increases of the same size.
func Amendments(s Settings, records []domain.Record) []domain.WorkItem {
	var out []domain.WorkItem
	for _, rec := range records {
		f := fields{rec: rec}
		id := f.str(amdIDKeys...)
		if id == "" || f.decided() {
			continue
		}
		status := f.str(statusKeys...)
		if !s.AmendmentAwaiting.Contains(status) {
			continue
		}
		ref := orDefault(f.str(amdRefKeys...), id)
		delta := f.amount(amdDeltaKeys...)
		impact := math.Abs(delta)
		days := f.days(amdDueKeys...)
		partner := f.str(amdPartner...)

		evidence := []string{"Status: " + status}
		switch {
		case delta > 0:
			evidence = append(evidence, "Cost increase of "+formatAmount(impact))
		case delta < 0:
			evidence = append(evidence, "Cost reduction of "+formatAmount(impact))
		}
		risk := domain.RiskMedium
		switch {
		case impact > s.AmendmentCriticalThreshold:
			risk = domain.RiskCritical
			evidence = append(evidence, "Impact above "+formatAmount(s.AmendmentCriticalThreshold))
		case impact > s.AmendmentHighThreshold:
			risk = domain.RiskHigh
			evidence = append(evidence, "Impact above "+formatAmount(s.AmendmentHighThreshold))
		}
		if days != nil {
			evidence = append(evidence, countdown("Arbitration due", *days))
		}
		var links []domain.Link
		if c := f.str(contractKeys...); c != "" && c != id {
			links = append(links, domain.Link{Label: "Contract " + c, Reference: "contracts/" + c})
		}
		out = append(out, domain.WorkItem{
			UniqueKey:      uniqueKey(domain.CategoryAmendment, id),
			SourceID:       id,
			Category:       domain.CategoryAmendment,
			Title:          "Arbitrate amendment " + ref,
			ProjectRef:     f.str(projectKeys...),
			PartnerRef:     partner,
			OwnerOrg:       f.str(ownerKeys...),
			MonetaryImpact: impact,
			DaysToDue:      days,
			RiskLevel:      risk,
			Evidence:       evidence,
			RecommendedActions: []domain.Action{
				{Kind: domain.ActionOpenModule, Label: "Open amendment"},
				{Kind: domain.ActionArbitrate, Label: "Arbitrate", RequiresReason: true},
				{Kind: domain.ActionReject, Label: "Reject", RequiresReason: true},
			},
			RelatedLinks: links,
			CreatedAt:    f.createdAt(s.Now),
		})
	}
	return out
}

// Contracts surfaces unsigned contracts whose signature deadline falls
// within the configured window. Contracts past their deadline stay in.
func Contracts(s Settings, records []domain.Record) []domain.WorkItem {
	var out []domain.WorkItem
	for _, rec := range records {
		f := fields{rec: rec}
		id := f.str(ctrIDKeys...)
		if id == "" {
			continue
		}
		if f.flag(ctrSignedKeys...) || signedStatus.Contains(f.str(statusKeys...)) {
			continue
		}
		days := f.days(ctrDaysKeys...)
		if days == nil {
			if deadline, ok := f.time(ctrDateKeys...); ok {
				d := daysBetween(s.Now, deadline)
				days = &d
			}
		}
		if days == nil || *days > s.ContractWindowDays {
			continue
		}
		ref := orDefault(f.str(ctrRefKeys...), id)
		amount := math.Abs(f.amount(ctrAmountKeys...))
		partner := f.str(ctrPartner...)

		risk := domain.RiskHigh
		if *days < 0 {
			risk = domain.RiskCritical
		}
		evidence := []string{countdown("Signature deadline", *days)}
		if amount > 0 {
			evidence = append(evidence, "Contract value "+formatAmount(amount))
		}
		if partner != "" {
			evidence = append(evidence, "Counterparty: "+partner)
		}
		out = append(out, domain.WorkItem{
			UniqueKey:      uniqueKey(domain.CategoryContract, id),
			SourceID:       id,
			Category:       domain.CategoryContract,
			Title:          "Sign contract " + ref,
			ProjectRef:     f.str(projectKeys...),
			PartnerRef:     partner,
			OwnerOrg:       f.str(ownerKeys...),
			MonetaryImpact: amount,
			DaysToDue:      days,
			RiskLevel:      risk,
			Evidence:       evidence,
			RecommendedActions: []domain.Action{
				{Kind: domain.ActionOpenModule, Label: "Open contract"},
				{Kind: domain.ActionSign, Label: "Sign"},
				{Kind: domain.ActionSendForReview, Label: "Send for review"},
			},
			CreatedAt: f.createdAt(s.Now),
		})
	}
	return out
}

// SourceID resolves the correlation id of a raw record the way the
// adapter of domainName does. It returns "" when the record has none.
func SourceID(domainName string, rec domain.Record) string {
	f := fields{rec: rec}
	switch domainName {
	case domain.DomainPurchaseOrders:
		return f.str(poIDKeys...)
	case domain.DomainInvoices:
		return f.str(invIDKeys...)
	case domain.DomainAmendments:
		return f.str(amdIDKeys...)
	case domain.DomainContracts:
		return f.str(ctrIDKeys...)
	}
	return f.str("id")
}

func uniqueKey(c domain.Category, id string) string {
	return strings.ToLower(string(c)) + ":" + id
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func formatAmount(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

func countdown(what string, days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("%s passed %s ago", what, plural(-days))
	case days == 0:
		return what + " today"
	default:
		return fmt.Sprintf("%s in %s", what, plural(days))
	}
}

func plural(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// daysBetween counts calendar days from now to t, both taken in UTC.
func daysBetween(now, t time.Time) int {
	from := now.UTC().Truncate(24 * time.Hour)
	to := t.UTC().Truncate(24 * time.Hour)
	return int(to.Sub(from).Hours() / 24)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
