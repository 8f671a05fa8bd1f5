package models

// ContactSubmission is the payload relayed by the contact form
type ContactSubmission struct {
	Name              string `json:"name" validate:"required,max=200"`
	SiteName          string `json:"site_name" validate:"required,max=200"`
	Email             string `json:"email" validate:"required,email"`
	Phone             string `json:"phone" validate:"omitempty,max=40"`
	ProtectionDetails string `json:"protection_details" validate:"required,max=5000"`
}

// Fields returns the submission as relay form fields.
func (c ContactSubmission) Fields() map[string]string {
	return map[string]string{
		"name":              c.Name,
		"siteName":          c.SiteName,
		"email":             c.Email,
		"phone":             c.Phone,
		"protectionDetails": c.ProtectionDetails,
	}
}
