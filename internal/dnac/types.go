package dnac

// Device is one entry of the network-device list
type Device struct {
	ID                  string `json:"id"`
	Hostname            string `json:"hostname"`
	ManagementIPAddress string `json:"managementIpAddress"`
	PlatformID          string `json:"platformId"`
	Family              string `json:"family"`
	Role                string `json:"role"`
	SoftwareVersion     string `json:"softwareVersion"`
	MacAddress          string `json:"macAddress"`
	ReachabilityStatus  string `json:"reachabilityStatus"`
	SerialNumber        string `json:"serialNumber"`
}

// Site is one entry of the site list
type Site struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	SiteNameHierarchy string           `json:"siteNameHierarchy"`
	ParentID          string           `json:"parentId"`
	AdditionalInfo    []AdditionalInfo `json:"additionalInfo,omitempty"`
}

// AdditionalInfo carries namespaced site attributes such as the site type
type AdditionalInfo struct {
	NameSpace  string            `json:"nameSpace"`
	Attributes map[string]string `json:"attributes"`
}

// Type returns the site type ("area", "building" or "floor") if the
// controller reported one
func (s Site) Type() string {
	for _, info := range s.AdditionalInfo {
		if t, ok := info.Attributes["type"]; ok {
			return t
		}
	}
	return ""
}

// Membership describes which devices belong to a site. Device is nil when the
// controller omitted the field entirely.
type Membership struct {
	Site   *MembershipSite   `json:"site,omitempty"`
	Device []MembershipGroup `json:"device"`
}

// MembershipSite is the site block of a membership payload
type MembershipSite struct {
	Response []Site `json:"response"`
}

// MembershipGroup is one device group of a membership payload
type MembershipGroup struct {
	Response []MemberDevice `json:"response"`
	SiteID   string         `json:"siteId,omitempty"`
}

// MemberDevice is a device listed in a membership group. SerialNumber is nil
// when the field is missing.
type MemberDevice struct {
	ID           string  `json:"instanceUuid,omitempty"`
	Hostname     string  `json:"hostname,omitempty"`
	SerialNumber *string `json:"serialNumber,omitempty"`
}

// envelope is the common response wrapper of the intent API
type envelope[T any] struct {
	Response T      `json:"response"`
	Version  string `json:"version,omitempty"`
}

type tokenResponse struct {
	Token string `json:"Token"`
}
