package xmlnorm

import (
	"net/url"
	"strings"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// ParseDeviceDescription parses a UPnP device description document fetched
// from fetchURL. Missing fields become the empty string, not a fatal error;
// MalformedXml is returned only when the root element is missing or
// unparseable.
func ParseDeviceDescription(raw []byte, fetchURL string) (upnpmodel.Device, error) {
	root, err := parseWithFallbacks(raw)
	if err != nil {
		return upnpmodel.Device{}, err
	}

	deviceNode := findDeviceElement(root)
	if deviceNode == nil {
		// A missing device element is tolerated: an empty-but-valid Device
		// is returned, matching the "missing fields become empty string"
		// contract rather than failing the whole fetch.
		return upnpmodel.Device{DescriptionURL: fetchURL}, nil
	}

	base := resolveBase(root, fetchURL)

	d := upnpmodel.Device{
		DeviceType:     deviceNode.textOf("deviceType"),
		FriendlyName:   deviceNode.textOf("friendlyName"),
		Manufacturer:   deviceNode.textOf("manufacturer"),
		ModelName:      deviceNode.textOf("modelName"),
		ModelNumber:    deviceNode.textOf("modelNumber"),
		UDN:            deviceNode.textOf("UDN"),
		DescriptionURL: fetchURL,
	}

	if serviceList := deviceNode.find("serviceList"); serviceList != nil {
		for _, svcNode := range serviceList.findAll("service") {
			d.Services = append(d.Services, parseService(svcNode, base))
		}
	}

	return d, nil
}

// findDeviceElement locates the <device> subtree, tolerating case
// variations and a root element that is itself the device node.
func findDeviceElement(root *node) *node {
	if d := root.findRecursive("device"); d != nil {
		return d
	}
	for _, tag := range []string{"Device", "DEVICE"} {
		if d := root.findRecursive(tag); d != nil {
			return d
		}
	}
	switch root.tag {
	case "device", "Device", "DEVICE":
		return root
	}
	return nil
}

func parseService(n *node, base *url.URL) upnpmodel.Service {
	return upnpmodel.Service{
		ServiceType: n.textOf("serviceType"),
		ServiceID:   n.textOf("serviceId"),
		ControlURL:  resolveAgainst(base, n.textOf("controlURL")),
		EventSubURL: resolveAgainst(base, n.textOf("eventSubURL")),
		SCPDURL:     resolveAgainst(base, n.textOf("SCPDURL")),
	}
}

// resolveBase returns the base URL services are resolved against: the
// document's <URLBase> if present, else scheme+host+port of fetchURL.
func resolveBase(root *node, fetchURL string) *url.URL {
	fetched, err := url.Parse(fetchURL)
	if err != nil {
		fetched = &url.URL{}
	}

	if urlBase := root.findRecursive("URLBase"); urlBase != nil {
		if text := strings.TrimSpace(urlBase.text); text != "" {
			if parsed, err := url.Parse(text); err == nil {
				return parsed
			}
		}
	}

	return &url.URL{Scheme: fetched.Scheme, Host: fetched.Host}
}

func resolveAgainst(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
