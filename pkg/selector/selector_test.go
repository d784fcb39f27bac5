package selector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/selector"
)

func TestSelectRootReturnsScalarUnchanged(t *testing.T) {
	v, err := selector.Select("root", 40000.5)
	require.NoError(t, err)
	assert.Equal(t, 40000.5, v)
}

func TestSelectDotPath(t *testing.T) {
	payload := map[string]interface{}{
		"data": map[string]interface{}{"rate": 1.0012},
	}

	v, err := selector.Select(".data.rate", payload)
	require.NoError(t, err)
	assert.Equal(t, 1.0012, v)
}

func TestSelectBracketIndex(t *testing.T) {
	payload := map[string]interface{}{
		"items": []interface{}{"a", "b", "c"},
	}

	v, err := selector.Select(".items[1]", payload)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestSelectWildcardProjectsAcrossListElements(t *testing.T) {
	payload := []interface{}{
		map[string]interface{}{"price": 1.0},
		map[string]interface{}{"price": 2.0},
		map[string]interface{}{"price": 3.0},
	}

	v, err := selector.Select("[*].price", payload)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, v)
}

func TestSelectWildcardSkipsElementsMissingThePath(t *testing.T) {
	payload := []interface{}{
		map[string]interface{}{"price": 1.0},
		map[string]interface{}{"other": 2.0},
	}

	v, err := selector.Select("[*].price", payload)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0}, v)
}

func TestSelectWildcardOnNonListFails(t *testing.T) {
	_, err := selector.Select("[*].price", map[string]interface{}{"price": 1.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrSelectionFailed)
}

func TestSelectMissingKeyFails(t *testing.T) {
	payload := map[string]interface{}{"a": 1}

	_, err := selector.Select(".b.c", payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrSelectionFailed)
}

func TestSelectWithoutLeadingDot(t *testing.T) {
	payload := map[string]interface{}{"p": "40000.5"}

	v, err := selector.Select("p", payload)
	require.NoError(t, err)
	assert.Equal(t, "40000.5", v)
}

const samplePage = `<html><body>
<div class="content"><p id="price" data-currency="usd">123.45</p></div>
<ul class="items"><li>first</li><li>second</li></ul>
</body></html>`

func TestSelectHTMLByCSSClassAndID(t *testing.T) {
	v, err := selector.Select("div.content #price", []byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "123.45", v)
}

func TestSelectHTMLAttributeValue(t *testing.T) {
	v, err := selector.Select("#price@data-currency", []byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "usd", v)
}

func TestSelectHTMLByXPathPosition(t *testing.T) {
	v, err := selector.Select("//li[2]", []byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestSelectHTMLByXPathAbsolutePath(t *testing.T) {
	v, err := selector.Select("/html/body/div/p", []byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "123.45", v)
}

func TestSelectHTMLMissingMatchFails(t *testing.T) {
	_, err := selector.Select("#does-not-exist", []byte(samplePage))
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrSelectionFailed)
}

func TestSelectRootOnHTMLReturnsRawBytesUnchanged(t *testing.T) {
	v, err := selector.Select("root", []byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, []byte(samplePage), v)
}
