package core

import "strings"

const credentialTypeSeparator = ":"

type systemEntry struct {
	system    System
	canonical string
	aliases   []string
}

type subTypeEntry struct {
	system  System
	subType SubType
}

var systemTable = []systemEntry{
	{system: SystemPrimary, canonical: "EAS", aliases: []string{"primary"}},
	{system: SystemFederation, canonical: "CONNECT", aliases: []string{"federation"}},
}

var subTypeTable = []subTypeEntry{
	{system: SystemPrimary, subType: SubTypePassword},
	{system: SystemPrimary, subType: SubTypeExchangeCode},
	{system: SystemPrimary, subType: SubTypeDeviceCode},
	{system: SystemPrimary, subType: SubTypeDeveloper},
	{system: SystemPrimary, subType: SubTypeAccountPortal},
	{system: SystemPrimary, subType: SubTypePersistentAuth},
	{system: SystemPrimary, subType: SubTypeExternalAuth},

	{system: SystemFederation, subType: SubTypePrimaryAccount},
	{system: SystemFederation, subType: SubTypeSteam},
	{system: SystemFederation, subType: SubTypePSN},
	{system: SystemFederation, subType: SubTypeXBL},
	{system: SystemFederation, subType: SubTypeGOG},
	{system: SystemFederation, subType: SubTypeDiscord},
	{system: SystemFederation, subType: SubTypeNintendoID},
	{system: SystemFederation, subType: SubTypeNintendoNSA},
	{system: SystemFederation, subType: SubTypeUplay},
	{system: SystemFederation, subType: SubTypeOpenID},
	{system: SystemFederation, subType: SubTypeDevice},
	{system: SystemFederation, subType: SubTypeApple},
	{system: SystemFederation, subType: SubTypeContinuance},
	{system: SystemFederation, subType: SubTypeLink},
}

var systemCanonical = func() map[System]string {
	out := make(map[System]string, len(systemTable))
	for _, entry := range systemTable {
		out[entry.system] = entry.canonical
	}
	return out
}()

// Parse decodes "<System>:<SubType>" into a LoginRequest. Both segments are
// matched case-insensitively and the string is split on the first separator.
// The returned request has slot zero; use WithSlot to bind it.
func Parse(encodedType string, id string, token string) (LoginRequest, error) {
	raw := strings.TrimSpace(encodedType)
	left, right, found := strings.Cut(raw, credentialTypeSeparator)
	if !found {
		return LoginRequest{}, &ParseError{
			Input:  raw,
			Reason: "must be formatted as <system>:<login flow>",
		}
	}
	left = strings.TrimSpace(left)
	right = strings.TrimSpace(right)
	if left == "" {
		return LoginRequest{}, &ParseError{Input: raw, Reason: "must specify a credential system"}
	}

	system, ok := ParseSystem(left)
	if !ok {
		return LoginRequest{}, &ParseError{
			Input:   raw,
			Segment: left,
			Reason:  "is not a recognized credential system",
		}
	}
	if right == "" {
		return LoginRequest{}, &ParseError{Input: raw, Reason: "must specify login flow"}
	}

	subType, ok := lookupSubType(system, right)
	if !ok {
		return LoginRequest{}, &ParseError{
			Input:   raw,
			Segment: right,
			Reason:  "is not a recognized login flow",
		}
	}

	return LoginRequest{
		System:  system,
		SubType: subType,
		ID:      id,
		Token:   token,
	}, nil
}

// ParseCredentials decodes inbound credentials and binds them to a slot.
func ParseCredentials(slot SlotIndex, creds Credentials) (LoginRequest, error) {
	req, err := Parse(creds.Type, creds.ID, creds.Token)
	if err != nil {
		return LoginRequest{}, err
	}
	return req.WithSlot(slot).WithAllowCreate(creds.AllowCreate), nil
}

// Format is the inverse of Parse and always yields the canonical spelling.
func Format(system System, subType SubType) string {
	canonical := string(subType)
	if resolved, ok := lookupSubType(system, string(subType)); ok {
		canonical = string(resolved)
	}
	return system.String() + credentialTypeSeparator + canonical
}

func ParseSystem(value string) (System, bool) {
	value = strings.TrimSpace(value)
	for _, entry := range systemTable {
		if strings.EqualFold(entry.canonical, value) {
			return entry.system, true
		}
		for _, alias := range entry.aliases {
			if strings.EqualFold(alias, value) {
				return entry.system, true
			}
		}
	}
	return SystemUnknown, false
}

// SubTypes lists the registered sub-types for a system in table order.
func SubTypes(system System) []SubType {
	out := make([]SubType, 0, len(subTypeTable))
	for _, entry := range subTypeTable {
		if entry.system == system {
			out = append(out, entry.subType)
		}
	}
	return out
}

func lookupSubType(system System, value string) (SubType, bool) {
	for _, entry := range subTypeTable {
		if entry.system == system && strings.EqualFold(string(entry.subType), value) {
			return entry.subType, true
		}
	}
	return "", false
}
