package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Author struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Bio       string     `json:"bio"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	BookCount int        `json:"book_count,omitempty"`
}

func (a Author) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

type Publisher struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Email       string `json:"email"`
	BookCount   int    `json:"book_count,omitempty"`
}

type Genre struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	BookCount   int    `json:"book_count,omitempty"`
}

type Book struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Authors         []Author        `json:"authors"`
	Publisher       *Publisher      `json:"publisher,omitempty"`
	Genres          []Genre         `json:"genres"`
	ISBN            string          `json:"isbn,omitempty"`
	Description     string          `json:"description"`
	Pages           int             `json:"pages"`
	Language        string          `json:"language"`
	Price           decimal.Decimal `json:"price"`
	Discount        int             `json:"discount"`
	PublicationDate time.Time       `json:"publication_date"`
	Stock           int             `json:"stock"`
	Views           int             `json:"views"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FinalPrice applies the percentage discount and rounds to cents.
func (b Book) FinalPrice() decimal.Decimal {
	if b.Discount <= 0 {
		return b.Price
	}
	return b.Price.Mul(decimal.NewFromInt(int64(100 - b.Discount))).Div(hundred).Round(2)
}

func (b Book) IsAvailable() bool {
	return b.Stock > 0
}

func (b Book) AuthorsDisplay() string {
	names := make([]string, 0, len(b.Authors))
	for _, a := range b.Authors {
		names = append(names, a.FullName())
	}
	return strings.Join(names, ", ")
}

func (b Book) MarshalJSON() ([]byte, error) {
	type alias Book
	if b.Authors == nil {
		b.Authors = []Author{}
	}
	if b.Genres == nil {
		b.Genres = []Genre{}
	}
	return json.Marshal(struct {
		alias
		FinalPrice  decimal.Decimal `json:"final_price"`
		IsAvailable bool            `json:"is_available"`
	}{alias(b), b.FinalPrice(), b.IsAvailable()})
}
