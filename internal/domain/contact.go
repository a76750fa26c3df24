package domain

// Contact carries the attributes pushed to the remote contact directory.
// Email is the sole join key between local submissions and remote contacts.
type Contact struct {
	Email        string
	Name         string
	Company      string
	Lifecycle    string
	CustomFields map[string]string
}

// Deal describes a sales opportunity created alongside a contact.
type Deal struct {
	Name         string
	Stage        string
	Amount       string
	CustomFields map[string]string
}
