package provider

import "workinbox/internal/domain"

// Sample returns the mock dataset used when no store or snapshot file is
// configured.
func Sample() Static {
	return Static{Snapshot: domain.Bundle{
		PurchaseOrders: []domain.Record{
			{"id": "po-1042", "reference": "BC-2025-1042", "amount": "18 750 000 FCFA", "daysToExpiry": 2, "supplier": "Sotraco BTP", "projectId": "PRJ-ROUTE-N2", "ownerOrg": "Direction des Achats"},
			{"id": "po-1043", "reference": "BC-2025-1043", "amount": 420000, "supplier": "Bureau Plus", "ownerOrg": "Moyens Généraux"},
			{"id": "po-1038", "reference": "BC-2025-1038", "amount": "2,300,000", "decision": "approved"},
		},
		Invoices: []domain.Record{
			{"id": "inv-88", "number": "FAC-2025-088", "status": "Reçue", "amount": "7 200 000 XOF", "daysLate": 9, "supplier": "Sotraco BTP", "purchaseOrderId": "po-1042", "projectId": "PRJ-ROUTE-N2"},
			{"id": "inv-91", "number": "FAC-2025-091", "statut": "en_attente", "amount": 1250000, "dueInDays": 4, "supplier": "Bureau Plus"},
			{"id": "inv-77", "number": "FAC-2025-077", "status": "paid", "amount": 980000},
		},
		Amendments: []domain.Record{
			{"id": "amd-12", "reference": "AV-03 Lot 2", "status": "proposed", "costDelta": -12500000, "contractId": "ctr-7", "contractor": "Sotraco BTP", "projectId": "PRJ-ROUTE-N2"},
			{"id": "amd-14", "reference": "AV-01 Lot 5", "status": "Proposé", "costDelta": "4 100 000", "contractId": "ctr-9", "daysToDecision": 6},
		},
		Contracts: []domain.Record{
			{"id": "ctr-9", "reference": "MAR-2025-009", "amount": "64 000 000 FCFA", "daysToSignature": 3, "partner": "Groupement Ecotech"},
			{"id": "ctr-11", "reference": "MAR-2025-011", "amount": 8000000, "daysToSignature": -1, "partner": "Atelier Kondo"},
			{"id": "ctr-12", "reference": "MAR-2025-012", "daysToSignature": 21},
		},
	}}
}
