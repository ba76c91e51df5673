package dto

// ArchivePaymentRequest asks for a logged payment to be closed out by hand.
// The tuple must identify an existing NO_MATCH payment log row.
type ArchivePaymentRequest struct {
	SenderName string `json:"sender_name"`
	Amount     string `json:"amount"`
	FromEmail  string `json:"from_email"`
	Note       string `json:"note,omitempty"`
}

// Validate checks required fields.
func (r *ArchivePaymentRequest) Validate() string {
	if r.SenderName == "" {
		return "sender_name is required"
	}
	if r.Amount == "" {
		return "amount is required"
	}
	if r.FromEmail == "" {
		return "from_email is required"
	}
	return ""
}
