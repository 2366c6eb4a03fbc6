package onboarding

// Tenant steps. Step 1 (choosing the account type) is completed by Start.
const (
	StepChooseType = 1

	TenantStepPersonal = 2
	TenantStepUnit     = 3
	TenantStepDocument = 4
	TenantStepDeposit  = 5
	TenantStepSecurity = 6
	TenantSteps        = 6

	LandlordStepPersonal   = 2
	LandlordStepProperties = 3
	LandlordStepPayment    = 4
	LandlordSteps          = 4
)

type TenantPersonal struct {
	LandlordCode     string `json:"landlord_code" validate:"required,max=32"`
	FullName         string `json:"full_name" validate:"required,max=100"`
	NationalID       string `json:"national_id" validate:"keid"`
	Email            string `json:"email" validate:"required,email,max=255"`
	PhoneNumber      string `json:"phone_number" validate:"kephone"`
	EmergencyContact string `json:"emergency_contact" validate:"kephone"`
}

type TenantUnit struct {
	PropertyID int64 `json:"property_id" validate:"required,gt=0"`
	UnitID     int64 `json:"unit_id" validate:"required,gt=0"`
}

type TenantDocument struct {
	IDDocumentURL string `json:"id_document_url" validate:"required,url"`
}

type DepositPayment struct {
	MpesaPhone string `json:"mpesa_phone" validate:"kephone"`
}

type AccountSecurity struct {
	Password        string `json:"password" validate:"strongpw,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=Password"`
}

type LandlordPersonal struct {
	FullName        string `json:"full_name" validate:"required,max=100"`
	NationalID      string `json:"national_id" validate:"keid"`
	MpesaTillNumber string `json:"mpesa_till_number" validate:"required,max=20"`
	Email           string `json:"email" validate:"required,email,max=255"`
	PhoneNumber     string `json:"phone_number" validate:"kephone"`
	Address         string `json:"address" validate:"required,max=255"`
	Website         string `json:"website" validate:"omitempty,url"`
	AccountSecurity
}

type UnitDraft struct {
	UnitNumber   string `json:"unit_number" validate:"required,max=20"`
	RoomType     string `json:"room_type" validate:"max=50"`
	Bedrooms     int    `json:"bedrooms" validate:"min=0"`
	Bathrooms    int    `json:"bathrooms" validate:"min=0"`
	RentCents    int64  `json:"rent_cents" validate:"gt=0"`
	DepositCents int64  `json:"deposit_cents" validate:"min=0"`
}

type PropertyDraft struct {
	Name    string      `json:"name" validate:"required,max=100"`
	Address string      `json:"address" validate:"required,max=255"`
	City    string      `json:"city" validate:"max=100"`
	State   string      `json:"state" validate:"max=100"`
	Units   []UnitDraft `json:"units" validate:"dive"`
}

type LandlordProperties struct {
	Properties []PropertyDraft `json:"properties" validate:"required,min=1,dive"`
}

func (l LandlordProperties) TotalUnits() int {
	n := 0
	for _, p := range l.Properties {
		n += len(p.Units)
	}
	return n
}

type SubscriptionPayment struct {
	MpesaPhone string `json:"mpesa_phone" validate:"kephone"`
}
