package devicecache

import (
	"strconv"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// key encodes an Identity as the single string primary key the SQLite
// store indexes on, mirroring the precedence upnpmodel.IdentityOf already
// establishes (UDN, then IP:Port, then the manufacturer/model/name tuple).
func key(id upnpmodel.Identity) string {
	if id.UDN != "" {
		return "udn:" + id.UDN
	}
	if id.IP != "" {
		return "ipport:" + id.IP + ":" + strconv.Itoa(id.Port)
	}
	return "name:" + id.Manufacturer + ":" + id.ModelName + ":" + id.FriendlyName
}
