package xmlnorm

import (
	"testing"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

const renderingControlSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>SetVolume</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>Channel</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable>
        </argument>
        <argument>
          <name>DesiredVolume</name>
          <direction>in</direction>
          <relatedStateVariable>Volume</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
    <action>
      <name>GetVolume</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>Channel</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable>
        </argument>
        <argument>
          <name>CurrentVolume</name>
          <direction>out</direction>
          <relatedStateVariable>Volume</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
    <action>
      <name>EditAccountPasswordX</name>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no">
      <name>Volume</name>
      <dataType>ui2</dataType>
      <allowedValueRange>
        <minimum>0</minimum>
        <maximum>100</maximum>
        <step>1</step>
      </allowedValueRange>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_Channel</name>
      <dataType>string</dataType>
      <allowedValueList>
        <allowedValue>Master</allowedValue>
        <allowedValue>LF</allowedValue>
        <allowedValue>RF</allowedValue>
      </allowedValueList>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_InstanceID</name>
      <dataType>ui4</dataType>
    </stateVariable>
  </serviceStateTable>
</scpd>`

func TestParseSCPDGoldenTable(t *testing.T) {
	doc, err := ParseSCPD([]byte(renderingControlSCPD), "urn:schemas-upnp-org:service:RenderingControl:1", "http://192.0.2.10:1400/xml/RenderingControl1.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(doc.Actions))
	}

	setVolume, ok := doc.Actions["SetVolume"]
	if !ok {
		t.Fatal("missing SetVolume")
	}
	if len(setVolume.ArgumentsIn) != 3 || len(setVolume.ArgumentsOut) != 0 {
		t.Fatalf("SetVolume args: in=%d out=%d", len(setVolume.ArgumentsIn), len(setVolume.ArgumentsOut))
	}
	if setVolume.Complexity != upnpmodel.ComplexityComplex {
		t.Fatalf("SetVolume complexity = %s, want complex", setVolume.Complexity)
	}
	if setVolume.Category != upnpmodel.CategoryVolumeControl {
		t.Fatalf("SetVolume category = %s, want volume_control", setVolume.Category)
	}

	getVolume := doc.Actions["GetVolume"]
	if len(getVolume.ArgumentsIn) != 2 || len(getVolume.ArgumentsOut) != 1 {
		t.Fatalf("GetVolume args: in=%d out=%d", len(getVolume.ArgumentsIn), len(getVolume.ArgumentsOut))
	}
	if getVolume.Complexity != upnpmodel.ComplexityMedium {
		t.Fatalf("GetVolume complexity = %s, want medium", getVolume.Complexity)
	}

	editPwd := doc.Actions["EditAccountPasswordX"]
	if editPwd.Category != upnpmodel.CategorySecurity {
		t.Fatalf("EditAccountPasswordX category = %s, want security", editPwd.Category)
	}
	if editPwd.Complexity != upnpmodel.ComplexityEasy {
		t.Fatalf("EditAccountPasswordX complexity = %s, want easy (0 in / 0 out)", editPwd.Complexity)
	}

	// Channel argument's data type is inherited from the referenced state
	// variable, which declares an allowed-value list.
	var channelArg upnpmodel.ActionArgument
	for _, a := range setVolume.ArgumentsIn {
		if a.Name == "Channel" {
			channelArg = a
		}
	}
	if channelArg.DataType != "string" {
		t.Fatalf("Channel dataType = %q, want string", channelArg.DataType)
	}
	if len(channelArg.AllowedValues) != 3 {
		t.Fatalf("Channel allowedValues = %v", channelArg.AllowedValues)
	}

	volumeSV := doc.StateVariables["Volume"]
	if volumeSV.Range == nil || volumeSV.Range.Max != "100" {
		t.Fatalf("Volume range = %+v", volumeSV.Range)
	}
}

func TestParseSCPDMissingActionListIsNotFatal(t *testing.T) {
	const noActions = `<?xml version="1.0"?><scpd><serviceStateTable></serviceStateTable></scpd>`
	doc, err := ParseSCPD([]byte(noActions), "urn:schemas-upnp-org:service:ConnectionManager:1", "http://x/cm.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Actions) != 0 {
		t.Fatalf("expected empty action set, got %d", len(doc.Actions))
	}
}

func TestParseSCPDArgumentWithoutStateVariableDefaultsToString(t *testing.T) {
	const noDataType = `<?xml version="1.0"?>
<scpd>
  <actionList>
    <action>
      <name>Launch</name>
      <argumentList>
        <argument>
          <name>AppID</name>
          <direction>in</direction>
        </argument>
      </argumentList>
    </action>
  </actionList>
</scpd>`
	doc, err := ParseSCPD([]byte(noDataType), "urn:example:service:Foo:1", "http://x/foo.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Actions["Launch"].ArgumentsIn[0].DataType != "string" {
		t.Fatalf("expected default dataType string, got %q", doc.Actions["Launch"].ArgumentsIn[0].DataType)
	}
}

// Sony IRCC devices publish an actionList whose arguments reference state
// variables declared after the action that uses them; the parser must not
// depend on declaration order since it reads the whole serviceStateTable
// before resolving arguments.
func TestParseSCPDSonyIRCCOrdering(t *testing.T) {
	const irccSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-sony-com:service-1-0">
  <actionList>
    <action>
      <name>X_SendIRCC</name>
      <argumentList>
        <argument>
          <name>IRCCCode</name>
          <direction>in</direction>
          <relatedStateVariable>X_A_ARG_TYPE_IRCCCode</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no">
      <name>X_A_ARG_TYPE_IRCCCode</name>
      <dataType>string</dataType>
    </stateVariable>
  </serviceStateTable>
</scpd>`
	doc, err := ParseSCPD([]byte(irccSCPD), "urn:schemas-sony-com:service:IRCC:1", "http://192.0.2.20:50002/IRCC/desc.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Actions["X_SendIRCC"].ArgumentsIn[0].DataType != "string" {
		t.Fatalf("expected IRCCCode dataType string")
	}
}
