package fieldid

// Well-known form identifiers.
const (
	Form1040  = "1040"
	FormW2    = "W2"
	FormSchA  = "SchA"
	FormSchC  = "SchC"
	FormSchSE = "SchSE"
)

// Well-known canonical field keys referenced by the calculation engine
// and the diagnostics rules. These are the single source of truth - the
// legacy underscore and colon spellings all normalize to these.
const (
	KeyWages         = "W2.wages"
	KeyWithholding   = "W2.withholding"
	KeySSN           = "W2.ssn"
	KeyNetProfit     = "SchC.netProfit"
	KeyItemizedTotal = "SchA.itemizedTotal"
	KeyFilingStatus  = "1040.filingStatus"
	KeyCTCClaimed    = "1040.ctcClaimed"
	KeyTotalIncome   = "1040.totalIncome"
	KeyAGI           = "1040.agi"
	KeyTaxableIncome = "1040.taxableIncome"
	KeyTotalTax      = "1040.totalTax"
	KeyRefund        = "1040.refund"
	KeySETax         = "SchSE.seTax"
)
