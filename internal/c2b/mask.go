package c2b

// MaskMSISDN preserves the first 5 and last 3 characters of phone, masking
// the interior with '*'; strings shorter than 8 characters pass through
// unchanged (§4.7's masking rule).
func MaskMSISDN(phone string) string {
	if len(phone) < 8 {
		return phone
	}
	interior := len(phone) - 8
	masked := make([]byte, 0, len(phone))
	masked = append(masked, phone[:5]...)
	for i := 0; i < interior; i++ {
		masked = append(masked, '*')
	}
	masked = append(masked, phone[len(phone)-3:]...)
	return string(masked)
}
