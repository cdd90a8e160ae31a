package echo

import "encoding/json"

type CurrentUserResponse struct {
	User *User `json:"user,omitempty"`
}

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username,omitempty"`
	UserDomain string `json:"user_domain,omitempty"`
	UserRegion string `json:"user_region,omitempty"`
}

type UserResponse struct {
	User User `json:"user"`
}

type OrderInformationEntry struct {
	OrderInformation OrderInformation `json:"order_information"`
}

type OrderInformation struct {
	CatalogItemRef       Ref                   `json:"catalog_item_ref"`
	OptionDefinitionRefs []OptionDefinitionRef `json:"option_definition_refs"`
}

type Ref struct {
	ID string `json:"id"`
}

type OptionDefinitionRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type createOrderRequest struct {
	Order struct{} `json:"order"`
}

type CreateOrderResponse struct {
	Order Ref `json:"order"`
}

type OrderItemEnvelope struct {
	OrderItem OrderItem `json:"order_item"`
}

type OrderItem struct {
	CatalogItemID   string           `json:"catalog_item_id"`
	Quantity        int              `json:"quantity"`
	OptionSelection *OptionSelection `json:"option_selection,omitempty"`
}

type OptionSelection struct {
	ID                   string `json:"id"`
	OptionDefinitionName string `json:"option_definition_name"`
	Content              string `json:"content"`
}

// PreferencesPayload is the body of a preferences read or write. Contacts are
// passed through to order user information without interpretation.
type PreferencesPayload struct {
	Preferences Preferences `json:"preferences"`
}

type Preferences struct {
	GeneralContact         json.RawMessage `json:"general_contact,omitempty"`
	OrderNotificationLevel string          `json:"order_notification_level,omitempty"`
}

type UserInformationPayload struct {
	UserInformation UserInformation `json:"user_information"`
}

type UserInformation struct {
	ShippingContact json.RawMessage `json:"shipping_contact"`
	BillingContact  json.RawMessage `json:"billing_contact"`
	OrderContact    json.RawMessage `json:"order_contact"`
	UserDomain      string          `json:"user_domain"`
	UserRegion      string          `json:"user_region"`
}
