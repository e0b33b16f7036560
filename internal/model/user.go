package model

// User roles issued by the identity provider
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User mirrors the identity provider's account so recipients can be resolved by email
// and audit entries can show who acted.
type User struct {
	Base
	Email       string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
	Role        string `gorm:"type:varchar(20);not null" json:"role"`
}
