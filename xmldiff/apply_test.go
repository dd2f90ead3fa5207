package xmldiff

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, xml string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	return doc
}

func TestApplyAddAttribute(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(
		`<diff><add sel="//job[@id='a']" type="@maxhull">500</add></diff>`))
	require.NoError(t, err)

	errs, err := Apply(base, patch, Strict)
	require.NoError(t, err)
	assert.Empty(t, errs)

	out, err := base.WriteToString()
	require.NoError(t, err)
	assert.Contains(t, out, `maxhull="500"`)
}

func TestApplyAddElementAppendAndPrepend(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff>
		<add sel="//jobs"><job id="z"/></add>
		<add sel="//jobs" pos="prepend"><job id="aa"/></add>
	</diff>`))
	require.NoError(t, err)

	_, err = Apply(base, patch, Strict)
	require.NoError(t, err)

	var ids []string
	for _, j := range base.FindElements("//job") {
		ids = append(ids, j.SelectAttrValue("id", ""))
	}
	assert.Equal(t, []string{"aa", "a", "z"}, ids)
}

func TestApplyAddBeforeAfter(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a"/><job id="c"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff>
		<add sel="//job[@id='c']" pos="before"><job id="b"/></add>
		<add sel="//job[@id='c']" pos="after"><job id="d"/></add>
	</diff>`))
	require.NoError(t, err)

	_, err = Apply(base, patch, Strict)
	require.NoError(t, err)

	var ids []string
	for _, j := range base.FindElements("//job") {
		ids = append(ids, j.SelectAttrValue("id", ""))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestApplyRemoveAttributeKeepsText(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a" quota="3">hi</job></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff>
		<remove sel="//job[@id='a']/@quota"/>
	</diff>`))
	require.NoError(t, err)
	_, err = Apply(base, patch, Strict)
	require.NoError(t, err)

	job := base.FindElement("//job")
	require.NotNil(t, job)
	assert.Nil(t, job.SelectAttr("quota"))
	assert.Equal(t, "hi", job.Text())
}

func TestApplyRemoveWholeElement(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a"/><job id="b"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff><remove sel="//job[@id='a']"/></diff>`))
	require.NoError(t, err)
	_, err = Apply(base, patch, Strict)
	require.NoError(t, err)
	assert.Len(t, base.FindElements("//job"), 1)
	assert.Equal(t, "b", base.FindElement("//job").SelectAttrValue("id", ""))
}

func TestApplyReplaceText(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a">old</job></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff><replace sel="//job[@id='a']/text()">new</replace></diff>`))
	require.NoError(t, err)
	_, err = Apply(base, patch, Strict)
	require.NoError(t, err)
	assert.Equal(t, "new", base.FindElement("//job").Text())
}

func TestApplyReplaceElementAndAttribute(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a" quota="3"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff>
		<replace sel="//job[@id='a']/@quota">9</replace>
	</diff>`))
	require.NoError(t, err)
	_, err = Apply(base, patch, Strict)
	require.NoError(t, err)
	assert.Equal(t, "9", base.FindElement("//job").SelectAttrValue("quota", ""))

	base2 := mustDoc(t, `<jobs><job id="a"><cue/></job></jobs>`)
	patch2, err := ParsePatch(strings.NewReader(`<diff>
		<replace sel="//cue"><cue name="new"/></replace>
	</diff>`))
	require.NoError(t, err)
	_, err = Apply(base2, patch2, Strict)
	require.NoError(t, err)
	cue := base2.FindElement("//cue")
	require.NotNil(t, cue)
	assert.Equal(t, "new", cue.SelectAttrValue("name", ""))
}

func TestApplyStrictAbortsOnFirstFailure(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff>
		<remove sel="//job[@id='missing']"/>
		<add sel="//jobs"><job id="never"/></add>
	</diff>`))
	require.NoError(t, err)

	errs, err := Apply(base, patch, Strict)
	require.Error(t, err)
	require.Len(t, errs, 1)
	assert.Nil(t, base.FindElement("//job[@id='never']"))
}

func TestApplySoftCollectsAllFailures(t *testing.T) {
	base := mustDoc(t, `<jobs><job id="a"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(`<diff>
		<remove sel="//job[@id='missing']"/>
		<add sel="//jobs"><job id="survivor"/></add>
	</diff>`))
	require.NoError(t, err)

	errs, err := Apply(base, patch, Soft)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.NotNil(t, base.FindElement("//job[@id='survivor']"))
}

func TestApplyNamespacedAttributeSilentlyIgnored(t *testing.T) {
	base := mustDoc(t, `<jobs xmlns:foo="urn:foo"><job id="a"/></jobs>`)
	patch, err := ParsePatch(strings.NewReader(
		`<diff><add sel="//job[@id='a']" type="@xsi:type">bar</add></diff>`))
	require.NoError(t, err)

	errs, err := Apply(base, patch, Strict)
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Nil(t, base.FindElement("//job").SelectAttr("xsi:type"))
}

func TestParsePatchRoundTrip(t *testing.T) {
	src := `<diff><add sel="//jobs" pos="append"><job id="z"/></add></diff>`
	patch, err := ParsePatch(strings.NewReader(src))
	require.NoError(t, err)

	var sb strings.Builder
	_, err = patch.WriteTo(&sb)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), `sel="//jobs"`)
	assert.Contains(t, sb.String(), `<job id="z"/>`)
}
