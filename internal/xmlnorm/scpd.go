package xmlnorm

import (
	"strconv"
	"strings"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// ParseSCPD parses a service's SCPD document. A missing <actionList> yields
// an empty action set with no error; MalformedXml is returned only when the
// root element is missing or unparseable.
func ParseSCPD(raw []byte, serviceType, scpdURL string) (upnpmodel.SCPDDocument, error) {
	doc := upnpmodel.SCPDDocument{
		ServiceType:    serviceType,
		SCPDURL:        scpdURL,
		Actions:        map[string]upnpmodel.SoapAction{},
		StateVariables: map[string]upnpmodel.StateVariable{},
	}

	root, err := parseWithFallbacks(raw)
	if err != nil {
		return doc, err
	}

	if svTable := root.findRecursive("serviceStateTable"); svTable != nil {
		for _, svNode := range svTable.findAll("stateVariable") {
			sv := parseStateVariable(svNode)
			doc.StateVariables[sv.Name] = sv
		}
	}

	actionList := root.findRecursive("actionList")
	if actionList == nil {
		return doc, nil
	}

	for _, actionNode := range actionList.findAll("action") {
		action := upnpmodel.SoapAction{Name: actionNode.textOf("name")}
		if action.Name == "" {
			doc.ParseErrors = append(doc.ParseErrors, "action with no name")
			continue
		}

		argList := actionNode.find("argumentList")
		if argList != nil {
			for _, argNode := range argList.findAll("argument") {
				arg := parseArgument(argNode, doc.StateVariables)
				switch arg.Direction {
				case upnpmodel.DirectionIn:
					action.ArgumentsIn = append(action.ArgumentsIn, arg)
				default:
					action.ArgumentsOut = append(action.ArgumentsOut, arg)
				}
			}
		}

		action.Complexity = upnpmodel.ClassifyComplexity(len(action.ArgumentsIn), len(action.ArgumentsOut))
		action.Category = upnpmodel.ClassifyCategory(action.Name)
		doc.Actions[action.Name] = action
	}

	return doc, nil
}

func parseArgument(n *node, stateVars map[string]upnpmodel.StateVariable) upnpmodel.ActionArgument {
	arg := upnpmodel.ActionArgument{
		Name:                 n.textOf("name"),
		RelatedStateVariable: n.textOf("relatedStateVariable"),
		DataType:             n.textOf("dataType"),
	}

	switch strings.ToLower(n.textOf("direction")) {
	case "out":
		arg.Direction = upnpmodel.DirectionOut
	default:
		arg.Direction = upnpmodel.DirectionIn
	}

	// data_type is carried forward from the referenced state variable when
	// the argument doesn't declare its own, and defaults to "string".
	if arg.RelatedStateVariable != "" {
		if sv, ok := stateVars[arg.RelatedStateVariable]; ok {
			if arg.DataType == "" {
				arg.DataType = sv.DataType
			}
			arg.AllowedValues = sv.AllowedValues
			arg.Range = sv.Range
		}
	}
	if arg.DataType == "" {
		arg.DataType = "string"
	}

	return arg
}

func parseStateVariable(n *node) upnpmodel.StateVariable {
	sv := upnpmodel.StateVariable{
		Name:         n.textOf("name"),
		DataType:     n.textOf("dataType"),
		DefaultValue: n.textOf("defaultValue"),
	}
	if sv.DataType == "" {
		sv.DataType = "string"
	}

	sendEvents := true
	for _, a := range n.attrs {
		if a.Name.Local == "sendEvents" {
			sendEvents = strings.EqualFold(a.Value, "yes") || a.Value == "1"
		}
	}
	sv.SendEvents = sendEvents

	if avList := n.find("allowedValueList"); avList != nil {
		for _, v := range avList.findAll("allowedValue") {
			sv.AllowedValues = append(sv.AllowedValues, strings.TrimSpace(v.text))
		}
	}

	if avRange := n.find("allowedValueRange"); avRange != nil {
		r := &upnpmodel.Range{
			Min:  avRange.textOf("minimum"),
			Max:  avRange.textOf("maximum"),
			Step: avRange.textOf("step"),
		}
		sv.Range = r
	}

	return sv
}

// ArgumentDataTypeIsNumeric reports whether a UPnP primitive type is a
// numeric type, used by the Control Engine to decide whether to
// range-check an argument value before invocation.
func ArgumentDataTypeIsNumeric(dataType string) bool {
	switch dataType {
	case "ui1", "ui2", "ui4", "ui8", "i1", "i2", "i4", "i8", "int", "r4", "r8", "number", "fixed.14.4":
		return true
	default:
		return false
	}
}

// ParseIntArg is a small helper the Control Engine uses when validating
// numeric arguments against a declared Range before sending a request.
func ParseIntArg(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
