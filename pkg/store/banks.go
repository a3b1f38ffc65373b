package store

import (
	"fmt"
	"slices"
	"time"
)

// Bank is a bank connection registered with the open-banking provider.
type Bank struct {
	Name          string   `json:"name"`
	InstitutionID string   `json:"id"`
	RequisitionID string   `json:"reqRef"`
	Accounts      []string `json:"accounts"`
	// ImportedTill is the last booking date (YYYY-MM-DD) already exported.
	ImportedTill              string     `json:"importedTill,omitempty"`
	EndUserAgreementValidTill *time.Time `json:"endUserAgreementValidTill,omitempty"`
}

// AgreementValid reports whether the end user agreement is still valid at now.
func (b *Bank) AgreementValid(now time.Time) bool {
	return b.EndUserAgreementValidTill != nil && now.Before(*b.EndUserAgreementValidTill)
}

// Group is a named set of banks exported together.
type Group struct {
	Name      string   `json:"name"`
	BankNames []string `json:"bankNames"`
}

type banksData struct {
	Banks  []Bank  `json:"banks"`
	Groups []Group `json:"groups"`
}

func (d banksData) clone() banksData {
	out := banksData{
		Banks:  make([]Bank, len(d.Banks)),
		Groups: make([]Group, len(d.Groups)),
	}
	for i, b := range d.Banks {
		b.Accounts = slices.Clone(b.Accounts)
		out.Banks[i] = b
	}
	for i, g := range d.Groups {
		g.BankNames = slices.Clone(g.BankNames)
		out.Groups[i] = g
	}
	return out
}

// BankStore holds the grabber's banks and groups.
type BankStore struct {
	doc *document[banksData]
}

// OpenBankStore loads the store at path. A missing file is an empty store.
func OpenBankStore(path string) (*BankStore, error) {
	doc, err := openDocument[banksData](path)
	if err != nil {
		return nil, fmt.Errorf("opening bank store: %w", err)
	}
	return &BankStore{doc: doc}, nil
}

// AddBank registers b. Names are unique.
func (s *BankStore) AddBank(b Bank) error {
	return s.doc.update(banksData.clone, func(d *banksData) error {
		if bankIndex(d.Banks, b.Name) >= 0 {
			return &ConflictError{Kind: "bank", Name: b.Name}
		}
		b.Accounts = slices.Clone(b.Accounts)
		d.Banks = append(d.Banks, b)
		return nil
	})
}

// GetBankByName returns a copy of the bank called name.
func (s *BankStore) GetBankByName(name string) (Bank, error) {
	var (
		out   Bank
		found bool
	)
	s.doc.read(func(d *banksData) {
		if i := bankIndex(d.Banks, name); i >= 0 {
			out, found = d.Banks[i], true
			out.Accounts = slices.Clone(out.Accounts)
		}
	})
	if !found {
		return Bank{}, &NotFoundError{Kind: "bank", Name: name}
	}
	return out, nil
}

// UpdateBank applies mutate to the bank called name and persists the result.
// The bank's name cannot be changed.
func (s *BankStore) UpdateBank(name string, mutate func(b *Bank)) error {
	return s.doc.update(banksData.clone, func(d *banksData) error {
		i := bankIndex(d.Banks, name)
		if i < 0 {
			return &NotFoundError{Kind: "bank", Name: name}
		}
		mutate(&d.Banks[i])
		d.Banks[i].Name = name
		return nil
	})
}

// GetBanks returns all banks in registration order.
func (s *BankStore) GetBanks() []Bank {
	var out []Bank
	s.doc.read(func(d *banksData) { out = d.clone().Banks })
	return out
}

// AddGroup registers an empty group.
func (s *BankStore) AddGroup(name string) error {
	return s.doc.update(banksData.clone, func(d *banksData) error {
		if groupIndex(d.Groups, name) >= 0 {
			return &ConflictError{Kind: "group", Name: name}
		}
		d.Groups = append(d.Groups, Group{Name: name, BankNames: []string{}})
		return nil
	})
}

// GetGroupByName returns a copy of the group called name.
func (s *BankStore) GetGroupByName(name string) (Group, error) {
	var (
		out   Group
		found bool
	)
	s.doc.read(func(d *banksData) {
		if i := groupIndex(d.Groups, name); i >= 0 {
			out, found = d.Groups[i], true
			out.BankNames = slices.Clone(out.BankNames)
		}
	})
	if !found {
		return Group{}, &NotFoundError{Kind: "group", Name: name}
	}
	return out, nil
}

// GetGroups returns all groups in registration order.
func (s *BankStore) GetGroups() []Group {
	var out []Group
	s.doc.read(func(d *banksData) { out = d.clone().Groups })
	return out
}

// AddBanksToGroup appends bankNames to the group. Every bank must exist;
// banks already in the group are skipped.
func (s *BankStore) AddBanksToGroup(group string, bankNames []string) error {
	return s.doc.update(banksData.clone, func(d *banksData) error {
		i := groupIndex(d.Groups, group)
		if i < 0 {
			return &NotFoundError{Kind: "group", Name: group}
		}
		for _, name := range bankNames {
			if bankIndex(d.Banks, name) < 0 {
				return &NotFoundError{Kind: "bank", Name: name}
			}
			if !slices.Contains(d.Groups[i].BankNames, name) {
				d.Groups[i].BankNames = append(d.Groups[i].BankNames, name)
			}
		}
		return nil
	})
}

// GetBanksInGroup returns the banks of a group in group order.
func (s *BankStore) GetBanksInGroup(group string) ([]Bank, error) {
	g, err := s.GetGroupByName(group)
	if err != nil {
		return nil, err
	}

	banks := make([]Bank, 0, len(g.BankNames))
	for _, name := range g.BankNames {
		b, err := s.GetBankByName(name)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group, err)
		}
		banks = append(banks, b)
	}
	return banks, nil
}

func bankIndex(banks []Bank, name string) int {
	return slices.IndexFunc(banks, func(b Bank) bool { return b.Name == name })
}

func groupIndex(groups []Group, name string) int {
	return slices.IndexFunc(groups, func(g Group) bool { return g.Name == name })
}
