package model

import "time"

// MaxPages is the hard cap on pages per memo, enforced at append time only.
// Reads tolerate memos that exceeded the cap before it existed.
const MaxPages = 10

type Memo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	MainCategory string    `json:"mainCategory"`
	SubCategory  string    `json:"subCategory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Page is an ordinal-addressed content unit. Page numbers are 1-based and
// dense within a memo: the set of page numbers is always {1..N}. Ownership
// is transitive through the memo; pages carry no user id.
type Page struct {
	ID         string    `json:"id"`
	MemoID     string    `json:"memoId"`
	PageNumber int       `json:"pageNumber"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MemoWithPages is the create-memo response shape. Pages holds the initial
// page, or is empty when the secondary page insert failed (memo creation
// is still reported as a success in that case).
type MemoWithPages struct {
	Memo
	Pages []Page `json:"pages"`
}

type CreateMemoRequest struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	MainCategory string `json:"main_category"`
	SubCategory  string `json:"sub_category"`
}

// UpdateMemoRequest uses pointers so absent fields are left untouched,
// while explicit empty strings clear the field.
type UpdateMemoRequest struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	MainCategory *string `json:"main_category"`
	SubCategory  *string `json:"sub_category"`
}

type PageRequest struct {
	Content string `json:"content"`
}
