package domain

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryPurchaseOrder Category = "PurchaseOrder"
	CategoryInvoice       Category = "Invoice"
	CategoryAmendment     Category = "Amendment"
	CategoryContract      Category = "Contract"
	CategoryBlockage      Category = "Blockage"
	CategoryLitigation    Category = "Litigation"
)

// Categories lists every known category in declaration order.
var Categories = []Category{
	CategoryPurchaseOrder,
	CategoryInvoice,
	CategoryAmendment,
	CategoryContract,
	CategoryBlockage,
	CategoryLitigation,
}

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskLevels is ordered from least to most severe.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the severity position of r, or -1 when r is unknown.
func (r RiskLevel) Rank() int {
	for i, lvl := range RiskLevels {
		if lvl == r {
			return i
		}
	}
	return -1
}

// ParseRiskLevel matches a risk level name case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	for _, lvl := range RiskLevels {
		if strings.EqualFold(string(lvl), strings.TrimSpace(s)) {
			return lvl, true
		}
	}
	return "", false
}

type ActionKind string

const (
	ActionOpenModule    ActionKind = "OpenModule"
	ActionValidate      ActionKind = "Validate"
	ActionReject        ActionKind = "Reject"
	ActionSendForReview ActionKind = "SendForReview"
	ActionArbitrate     ActionKind = "Arbitrate"
	ActionSign          ActionKind = "Sign"
)

type Action struct {
	Kind           ActionKind `json:"kind" yaml:"kind" enum:"OpenModule,Validate,Reject,SendForReview,Arbitrate,Sign"`
	Label          string     `json:"label" yaml:"label"`
	RequiresReason bool       `json:"requires_reason" yaml:"requires_reason"`
}

type Link struct {
	Label     string `json:"label" yaml:"label"`
	Reference string `json:"reference" yaml:"reference"`
}

// WorkItem is one pending obligation awaiting a decision-maker.
// PriorityScore is set by the aggregator and never by an adapter.
type WorkItem struct {
	UniqueKey          string    `json:"unique_key"`
	SourceID           string    `json:"source_id"`
	Category           Category  `json:"category" enum:"PurchaseOrder,Invoice,Amendment,Contract,Blockage,Litigation"`
	Title              string    `json:"title"`
	ProjectRef         string    `json:"project_ref,omitempty"`
	PartnerRef         string    `json:"partner_ref,omitempty"`
	OwnerOrg           string    `json:"owner_org,omitempty"`
	MonetaryImpact     float64   `json:"monetary_impact"`
	DaysToDue          *int      `json:"days_to_due,omitempty"`
	RiskLevel          RiskLevel `json:"risk_level" enum:"Low,Medium,High,Critical"`
	Evidence           []string  `json:"evidence"`
	RecommendedActions []Action  `json:"recommended_actions"`
	RelatedLinks       []Link    `json:"related_links,omitempty"`
	CreatedAt          time.Time `json:"created_at" format:"date-time"`
	PriorityScore      float64   `json:"priority_score"`
}

// ActionKinds returns the kinds of the recommended actions in their given order.
func (w WorkItem) ActionKinds() []ActionKind {
	kinds := make([]ActionKind, 0, len(w.RecommendedActions))
	for _, a := range w.RecommendedActions {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

// Record is a loosely-typed raw record owned by a domain collaborator.
type Record map[string]any

// Bundle groups the raw collections fed to the aggregator. A nil collection
// means the domain is absent from the snapshot.
type Bundle struct {
	PurchaseOrders []Record `json:"purchase_orders,omitempty" yaml:"purchase_orders,omitempty"`
	Invoices       []Record `json:"invoices,omitempty" yaml:"invoices,omitempty"`
	Amendments     []Record `json:"amendments,omitempty" yaml:"amendments,omitempty"`
	Contracts      []Record `json:"contracts,omitempty" yaml:"contracts,omitempty"`
}

// Source domains of raw collections, as stored and named on the wire.
const (
	DomainPurchaseOrders = "purchase_orders"
	DomainInvoices       = "invoices"
	DomainAmendments     = "amendments"
	DomainContracts      = "contracts"
)

// Domains lists the source domains in adapter execution order.
var Domains = []string{DomainPurchaseOrders, DomainInvoices, DomainAmendments, DomainContracts}

// Collection returns the records of the named domain.
func (b Bundle) Collection(domain string) []Record {
	switch domain {
	case DomainPurchaseOrders:
		return b.PurchaseOrders
	case DomainInvoices:
		return b.Invoices
	case DomainAmendments:
		return b.Amendments
	case DomainContracts:
		return b.Contracts
	}
	return nil
}

// WithCollection returns a copy of b with the named domain replaced.
func (b Bundle) WithCollection(domain string, records []Record) Bundle {
	switch domain {
	case DomainPurchaseOrders:
		b.PurchaseOrders = records
	case DomainInvoices:
		b.Invoices = records
	case DomainAmendments:
		b.Amendments = records
	case DomainContracts:
		b.Contracts = records
	}
	return b
}

// IsDomain reports whether name is a known source domain.
func IsDomain(name string) bool {
	for _, d := range Domains {
		if d == name {
			return true
		}
	}
	return false
}

// Event is an entry of the store's append-only log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
