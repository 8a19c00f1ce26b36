package models

// ReportCost is debited for every AI assessment a patient runs.
const ReportCost = 150

type CreditPackage struct {
	ID      string `json:"id"`
	Credits int    `json:"credits"`
	Price   int    `json:"price"`
	Label   string `json:"label"`
}

var CreditPackages = []CreditPackage{
	{ID: "starter", Credits: 150, Price: 99, Label: "Starter"},
	{ID: "standard", Credits: 750, Price: 249, Label: "Standard"},
	{ID: "pro", Credits: 1500, Price: 499, Label: "Pro"},
}

func FindCreditPackage(id string) (CreditPackage, bool) {
	for _, p := range CreditPackages {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}
