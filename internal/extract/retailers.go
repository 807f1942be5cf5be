package extract

var labelPrefixes = []string{"Brand: ", "Visit the "}
var labelSuffixes = []string{" Store"}

func labeled(rule Rule) Rule {
	return StripLabels(rule, labelPrefixes, labelSuffixes)
}

var bestbuy = Strategy{
	Brand: []Rule{
		Text("a.btn.btn-link.v-medium.btn-brand-link"),
		Text("div.shop-product-title a[data-track='Brand Link']"),
		Attr("meta[itemprop='brand']", "content"),
	},
	Model: []Rule{
		Text("h1.heading-5.v-fw-regular"),
		Text("div.sku-title h1"),
		Attr("meta[property='og:title']", "content"),
	},
	Price: []Rule{
		Text("div.priceView-hero-price.priceView-customer-price span"),
		Text("div[data-testid='customer-price'] span"),
		Attr("meta[itemprop='price']", "content"),
	},
	AddToCart: []string{
		"button.btn-primary.add-to-cart-button",
		"button[data-button-state='ADD_TO_CART']",
	},
}

var amazon = Strategy{
	Brand: []Rule{
		labeled(Text("a#bylineInfo")),
		labeled(Text("tr.po-brand td.a-span9 span")),
	},
	Model: []Rule{
		Text("span#productTitle"),
		Text("h1#title"),
	},
	Price: []Rule{
		Text("#corePrice_feature_div span.a-offscreen"),
		Text("span#priceblock_ourprice"),
		Text("span#priceblock_dealprice"),
		Text("span.a-price span.a-offscreen"),
	},
	AddToCart: []string{
		"input#add-to-cart-button",
		"input#buy-now-button",
	},
}
