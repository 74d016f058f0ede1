package domain

// Customer is the document persisted by the customer store, keyed by CustomerID.
type Customer struct {
	CustomerID string   `json:"customerid"`
	FirstName  string   `json:"firstname"`
	LastName   string   `json:"lastname"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Address    *Address `json:"address,omitempty"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}
